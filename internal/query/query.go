// Package query parses, normalizes, and fingerprints OpenTSDB query
// payloads, and decodes OpenTSDB responses including the trailing
// statsSummary block used to feed the historical-stats loop.
package query

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/sjson"
)

// BadQueryError is returned when a query body cannot be parsed or is missing
// a required field. Callers surface it to the client as a 403.
type BadQueryError struct {
	Reason string
}

func (e *BadQueryError) Error() string {
	return fmt.Sprintf("invalid OpenTSDB query: %s", e.Reason)
}

// relativeStartPattern matches OpenTSDB's relative-time grammar, e.g. "1h-ago".
var relativeStartPattern = regexp.MustCompile(`^(\d+)(ms|s|m|h|d|w|n|y)-ago$`)

// SubQuery is one element of the "queries" array in an OpenTSDB request.
type SubQuery struct {
	Metric     string                 `json:"metric"`
	Aggregator string                 `json:"aggregator"`
	Tags       map[string]interface{} `json:"tags"`
	Filters    []interface{}          `json:"filters"`
}

// Query is a parsed, fingerprinted OpenTSDB query document.
type Query struct {
	raw   map[string]interface{}
	body  []byte
	id    string
	Stats map[string]string
}

// Parse builds a Query from a raw POST body, rejecting payloads missing
// "queries" or "start".
func Parse(body []byte) (*Query, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &BadQueryError{Reason: "malformed JSON: " + err.Error()}
	}

	queries, ok := doc["queries"].([]interface{})
	if !ok || len(queries) == 0 {
		return nil, &BadQueryError{Reason: "missing or empty \"queries\""}
	}

	start, ok := doc["start"]
	if !ok || start == nil || fmt.Sprintf("%v", start) == "" {
		return nil, &BadQueryError{Reason: "missing or empty \"start\""}
	}

	q := &Query{raw: doc, body: body}
	if _, err := q.StartTimestamp(); err != nil {
		return nil, err
	}

	q.id = q.fingerprint()
	q.addDirectives()
	return q, nil
}

// addDirectives sets the two reserved directive flags so the backend
// returns a statsSummary block. Only done once, at ingestion.
func (q *Query) addDirectives() {
	q.raw["showStats"] = true
	q.raw["showQuery"] = true
}

// fingerprint computes the hex MD5 of the canonical JSON serialization of
// the query document with the time-window keys removed, so the same query
// shape accumulates stats across time-window shifts.
func (q *Query) fingerprint() string {
	stripped := make(map[string]interface{}, len(q.raw))
	for k, v := range q.raw {
		stripped[k] = v
	}
	for _, k := range []string{"start", "end", "timezone", "options", "padding", "showStats", "showQuery"} {
		delete(stripped, k)
	}
	canonical := canonicalJSON(stripped)
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON serializes v with object keys recursively sorted and no
// insignificant whitespace, so the same logical document always produces
// the same bytes regardless of original key order.
func canonicalJSON(v interface{}) []byte {
	normalized := normalize(v)
	out, _ := json.Marshal(normalized)
	return out
}

// normalize converts maps to a representation that encoding/json always
// marshals with sorted keys (true for map[string]interface{} already, but
// we recurse explicitly so nested slices/maps are normalized too).
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return t
	}
}

// ID returns the query's fingerprint.
func (q *Query) ID() string {
	return q.id
}

// StartRaw returns the raw "start" field as provided by the client.
func (q *Query) StartRaw() interface{} {
	return q.raw["start"]
}

// StartTimestamp resolves "start" to absolute Unix seconds, handling
// absolute seconds, absolute milliseconds (detected by value length > 12
// digits), and the relative "N-ago" grammar.
func (q *Query) StartTimestamp() (int64, error) {
	return resolveTimestamp(q.raw["start"])
}

// EndTimestamp resolves "end" to absolute Unix seconds, defaulting to now.
func (q *Query) EndTimestamp() (int64, error) {
	end, ok := q.raw["end"]
	if !ok || end == nil || fmt.Sprintf("%v", end) == "" {
		return time.Now().Unix(), nil
	}
	return resolveTimestamp(end)
}

func resolveTimestamp(raw interface{}) (int64, error) {
	s := fmt.Sprintf("%v", raw)
	if f, ok := raw.(float64); ok {
		// JSON numbers decode as float64; %v would render 1600000000 as 1.6e+09.
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}

	if isDigits(s) {
		if len(s) > 12 {
			ms, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return 0, &BadQueryError{Reason: "invalid timestamp: " + s}
			}
			return ms / 1000, nil
		}
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, &BadQueryError{Reason: "invalid timestamp: " + s}
		}
		return sec, nil
	}

	m := relativeStartPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, &BadQueryError{Reason: "start date parse error: " + s}
	}
	val, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &BadQueryError{Reason: "invalid relative value: " + s}
	}
	unit := m[2]

	var d time.Duration
	switch unit {
	case "ms":
		d = time.Duration(val) * time.Millisecond
	case "s":
		d = time.Duration(val) * time.Second
	case "m":
		d = time.Duration(val) * time.Minute
	case "h":
		d = time.Duration(val) * time.Hour
	case "d":
		d = time.Duration(val) * 24 * time.Hour
	case "w":
		d = time.Duration(val) * 7 * 24 * time.Hour
	case "n":
		d = time.Duration(val) * 30 * 24 * time.Hour
	case "y":
		d = time.Duration(val) * 365 * 24 * time.Hour
	default:
		return 0, &BadQueryError{Reason: "unsupported unit: " + unit}
	}

	return time.Now().Add(-d).Unix(), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IntervalMinutes is floor((end-start)/60), the bucket granularity stats
// are partitioned by.
func (q *Query) IntervalMinutes() (int64, error) {
	start, err := q.StartTimestamp()
	if err != nil {
		return 0, err
	}
	end, err := q.EndTimestamp()
	if err != nil {
		return 0, err
	}
	return (end - start) / 60, nil
}

// BucketKey is the id + "_" + interval key stats are partitioned by.
func (q *Query) BucketKey() (string, error) {
	interval, err := q.IntervalMinutes()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d", q.id, interval), nil
}

// MetricNames lists every sub-query's metric field, in order.
func (q *Query) MetricNames() []string {
	queries, _ := q.raw["queries"].([]interface{})
	names := make([]string, 0, len(queries))
	for _, item := range queries {
		sub, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if metric, ok := sub["metric"].(string); ok {
			names = append(names, metric)
		}
	}
	return names
}

// SubQueries returns the parsed "queries" array.
func (q *Query) SubQueries() []SubQuery {
	queries, _ := q.raw["queries"].([]interface{})
	out := make([]SubQuery, 0, len(queries))
	for _, item := range queries {
		sub, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		sq := SubQuery{}
		if v, ok := sub["metric"].(string); ok {
			sq.Metric = v
		}
		if v, ok := sub["aggregator"].(string); ok {
			sq.Aggregator = v
		}
		if v, ok := sub["tags"].(map[string]interface{}); ok {
			sq.Tags = v
		}
		if v, ok := sub["filters"].([]interface{}); ok {
			sq.Filters = v
		}
		out = append(out, sq)
	}
	return out
}

// ToOutboundJSON serializes the query with showStats/showQuery added, for
// forwarding to the backend.
func (q *Query) ToOutboundJSON() ([]byte, error) {
	out, err := sjson.SetBytes(q.body, "showStats", true)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "showQuery", true)
	if err != nil {
		return nil, err
	}
	return out, nil
}
