package query

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Response is a parsed OpenTSDB response: the series entries the client
// actually asked for, plus a flattened summary pulled out of the trailing
// statsSummary entry (if any).
type Response struct {
	series  []json.RawMessage
	Summary map[string]float64
}

// ParseResponse decodes an OpenTSDB response body. If the last array
// element carries a "statsSummary" object, its top-level numeric fields are
// flattened into Summary and the element itself is dropped from the
// retained series; nested queryIdx_* blocks are discarded. A response with
// no statsSummary parses successfully with an empty Summary.
func ParseResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, &BadQueryError{Reason: "malformed backend response JSON"}
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, &BadQueryError{Reason: "backend response is not a JSON array"}
	}

	elements := parsed.Array()
	resp := &Response{
		series:  make([]json.RawMessage, 0, len(elements)),
		Summary: map[string]float64{},
	}

	for i, el := range elements {
		summary := el.Get("statsSummary")
		if i == len(elements)-1 && summary.Exists() && summary.IsObject() {
			summary.ForEach(func(key, value gjson.Result) bool {
				if value.Type == gjson.Number {
					resp.Summary[key.String()] = value.Float()
				}
				return true
			})
			continue
		}
		resp.series = append(resp.series, json.RawMessage(el.Raw))
	}

	return resp, nil
}

// ToClientJSON re-emits only the retained series elements, with any
// trailing statsSummary stripped.
func (r *Response) ToClientJSON() ([]byte, error) {
	out := "[]"
	var err error
	for _, s := range r.series {
		// "-1" is sjson's append-to-array path; it grows the array by one
		// on each call, preserving series order.
		out, err = sjson.SetRaw(out, "-1", string(s))
		if err != nil {
			return nil, err
		}
	}
	return []byte(out), nil
}
