// Package report turns boosts and their widget stats into CSV rows.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"revstats/internal/config"
	"revstats/internal/revcontent"
)

// ErrSchemaDrift is returned when a record's metric names differ from the
// schema captured from the first record.
var ErrSchemaDrift = errors.New("widget stats schema drift")

// UTMSource returns the value of the first key=value pair in a UTM query string.
func UTMSource(utm string) string {
	if utm == "" {
		return ""
	}
	first := strings.Split(utm, "&")[0]
	parts := strings.Split(first, "=")
	return parts[len(parts)-1]
}

// Batch is what one boost contributes to the report. Header is set only for
// the first batch that carries records.
type Batch struct {
	Header []string
	Rows   [][]string
}

// Builder flattens stats into rows against a schema fixed at the first record.
type Builder struct {
	tag           config.Tag
	driftPolicy   string
	schema        []string
	schemaSet     map[string]struct{}
	headerEmitted bool
}

// NewBuilder returns a Builder. An empty driftPolicy means config.DriftError.
func NewBuilder(tag config.Tag, driftPolicy string) *Builder {
	if driftPolicy == "" {
		driftPolicy = config.DriftError
	}
	return &Builder{tag: tag, driftPolicy: strings.ToLower(driftPolicy)}
}

// Schema returns the captured metric names, or nil before the first record.
func (b *Builder) Schema() []string {
	return append([]string(nil), b.schema...)
}

// Add builds the rows for one boost.
func (b *Builder) Add(boost revcontent.Boost, stats []revcontent.WidgetStat) (Batch, error) {
	var batch Batch
	if len(stats) == 0 {
		return batch, nil
	}
	if b.schema == nil {
		b.captureSchema(stats[0])
	}
	prefix := b.prefix(boost)
	batch.Rows = make([][]string, 0, len(stats))
	for _, stat := range stats {
		if b.driftPolicy == config.DriftError {
			if err := b.checkDrift(boost, stat); err != nil {
				return Batch{}, err
			}
		}
		row := make([]string, 0, len(prefix)+len(b.schema))
		row = append(row, prefix...)
		for _, key := range b.schema {
			row = append(row, stat[key].String())
		}
		batch.Rows = append(batch.Rows, row)
	}
	if !b.headerEmitted {
		batch.Header = b.header()
		b.headerEmitted = true
	}
	return batch, nil
}

func (b *Builder) captureSchema(stat revcontent.WidgetStat) {
	b.schema = make([]string, 0, len(stat))
	b.schemaSet = make(map[string]struct{}, len(stat))
	for key := range stat {
		b.schema = append(b.schema, key)
		b.schemaSet[key] = struct{}{}
	}
	sort.Strings(b.schema)
}

func (b *Builder) header() []string {
	var header []string
	if !b.tag.IsZero() {
		header = append(header, b.tag.Name)
	}
	header = append(header, "campaign_name", "utm_source")
	return append(header, b.schema...)
}

func (b *Builder) prefix(boost revcontent.Boost) []string {
	var prefix []string
	if !b.tag.IsZero() {
		prefix = append(prefix, b.tag.Value)
	}
	return append(prefix, boost.Name, UTMSource(boost.UTMCodes))
}

func (b *Builder) checkDrift(boost revcontent.Boost, stat revcontent.WidgetStat) error {
	var extra, missing []string
	for key := range stat {
		if _, ok := b.schemaSet[key]; !ok {
			extra = append(extra, key)
		}
	}
	for _, key := range b.schema {
		if _, ok := stat[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(extra) == 0 && len(missing) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("%w: boost %s (%s): extra keys [%s], missing keys [%s]",
		ErrSchemaDrift, boost.ID, boost.Name, strings.Join(extra, ", "), strings.Join(missing, ", "))
}
