package revcontent

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Boost is one campaign as returned by the boosts listing.
type Boost struct {
	ID       string
	Name     string
	UTMCodes string
}

// WidgetStat is one per-widget statistics record keyed by metric name.
// Values keep their JSON type so the report can render them faithfully.
type WidgetStat map[string]gjson.Result

// Response is a decoded JSON API response.
type Response struct {
	StatusCode int
	Raw        []byte
	doc        gjson.Result
}

func newResponse(status int, body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response (status %d)", status)
	}
	return &Response{StatusCode: status, Raw: body, doc: gjson.ParseBytes(body)}, nil
}

// Get looks up a gjson path in the document.
func (r *Response) Get(path string) gjson.Result {
	return r.doc.Get(path)
}

// Data returns the top-level "data" member.
func (r *Response) Data() gjson.Result {
	return r.doc.Get("data")
}

func boostFromJSON(item gjson.Result) Boost {
	return Boost{
		ID:       item.Get("id").String(),
		Name:     item.Get("name").String(),
		UTMCodes: item.Get("utm_codes").String(),
	}
}

func widgetStatFromJSON(item gjson.Result) WidgetStat {
	stat := make(WidgetStat)
	item.ForEach(func(key, value gjson.Result) bool {
		stat[key.String()] = value
		return true
	})
	return stat
}
