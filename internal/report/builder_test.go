package report

import (
	"testing"

	"revstats/internal/config"
	"revstats/internal/revcontent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// stat builds a WidgetStat from a JSON object literal.
func stat(t *testing.T, raw string) revcontent.WidgetStat {
	t.Helper()
	require.True(t, gjson.Valid(raw), "invalid JSON: %s", raw)
	out := revcontent.WidgetStat{}
	gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v
		return true
	})
	return out
}

func TestUTMSource(t *testing.T) {
	tests := []struct {
		utm      string
		expected string
	}{
		{"", ""},
		{"utm_source=revcontent&utm_medium=cpc", "revcontent"},
		{"utm_source=a=b&x=y", "b"},
		{"plain", "plain"},
		{"utm_source=&utm_medium=cpc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.utm, func(t *testing.T) {
			assert.Equal(t, tt.expected, UTMSource(tt.utm))
		})
	}
}

func TestBuilder_HeaderAndRows(t *testing.T) {
	b := NewBuilder(config.Tag{}, "")
	boost := revcontent.Boost{ID: "1", Name: "Spring", UTMCodes: "utm_source=rc&x=1"}

	batch, err := b.Add(boost, []revcontent.WidgetStat{
		stat(t, `{"widget_id":10,"ctr":0.5,"spend":"2.00","active":false,"label":null}`),
		stat(t, `{"widget_id":11,"ctr":1.25,"spend":"3.10","active":true,"label":"x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign_name", "utm_source", "active", "ctr", "label", "spend", "widget_id"}, batch.Header)
	assert.Equal(t, [][]string{
		{"Spring", "rc", "false", "0.5", "", "2.00", "10"},
		{"Spring", "rc", "true", "1.25", "x", "3.10", "11"},
	}, batch.Rows)
	assert.Equal(t, []string{"active", "ctr", "label", "spend", "widget_id"}, b.Schema())

	batch, err = b.Add(revcontent.Boost{ID: "2", Name: "Fall"}, []revcontent.WidgetStat{
		stat(t, `{"widget_id":12,"ctr":2,"spend":"0","active":true,"label":"y"}`),
	})
	require.NoError(t, err)
	assert.Nil(t, batch.Header, "header is emitted once")
	assert.Equal(t, [][]string{{"Fall", "", "true", "2", "y", "0", "12"}}, batch.Rows)
}

func TestBuilder_Tag(t *testing.T) {
	b := NewBuilder(config.Tag{Name: "month", Value: "january"}, config.DriftError)
	batch, err := b.Add(revcontent.Boost{Name: "Spring"}, []revcontent.WidgetStat{stat(t, `{"clicks":3}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "campaign_name", "utm_source", "clicks"}, batch.Header)
	assert.Equal(t, [][]string{{"january", "Spring", "", "3"}}, batch.Rows)
}

func TestBuilder_EmptyStatsDeferHeader(t *testing.T) {
	b := NewBuilder(config.Tag{}, "")
	batch, err := b.Add(revcontent.Boost{Name: "Empty"}, nil)
	require.NoError(t, err)
	assert.Nil(t, batch.Header)
	assert.Empty(t, batch.Rows)
	assert.Nil(t, b.Schema())

	batch, err = b.Add(revcontent.Boost{Name: "Later"}, []revcontent.WidgetStat{stat(t, `{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign_name", "utm_source", "a"}, batch.Header)
}

func TestBuilder_SchemaDrift(t *testing.T) {
	first := []revcontent.WidgetStat{stat(t, `{"a":1,"b":2}`)}
	drifted := []revcontent.WidgetStat{stat(t, `{"a":1,"c":3}`)}
	boost := revcontent.Boost{ID: "7", Name: "Drifty"}

	t.Run("Error Policy", func(t *testing.T) {
		b := NewBuilder(config.Tag{}, config.DriftError)
		_, err := b.Add(boost, first)
		require.NoError(t, err)

		_, err = b.Add(boost, drifted)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchemaDrift)
		assert.Contains(t, err.Error(), "boost 7 (Drifty)")
		assert.Contains(t, err.Error(), "extra keys [c]")
		assert.Contains(t, err.Error(), "missing keys [b]")
	})

	t.Run("Drop Policy", func(t *testing.T) {
		b := NewBuilder(config.Tag{}, "DROP")
		_, err := b.Add(boost, first)
		require.NoError(t, err)

		batch, err := b.Add(boost, drifted)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"Drifty", "", "1", ""}}, batch.Rows)
	})

	t.Run("Drift Within First Batch Keeps Header Pending", func(t *testing.T) {
		b := NewBuilder(config.Tag{}, config.DriftError)
		_, err := b.Add(boost, []revcontent.WidgetStat{first[0], drifted[0]})
		require.ErrorIs(t, err, ErrSchemaDrift)
	})
}
