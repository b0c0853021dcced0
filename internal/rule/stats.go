package rule

import (
	"strconv"
	"time"

	"github.com/adobe/opentsdb-protector/internal/query"
)

// hasStats reports whether historical stats are attached at all. Every rule
// that consults stats returns Ok when none are attached (first sighting).
func hasStats(q *query.Query) bool {
	return len(q.Stats) > 0
}

func statFloat(q *query.Query, field string) (float64, bool) {
	raw, ok := q.Stats[field]
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func statInt64(q *query.Query, field string) (int64, bool) {
	raw, ok := q.Stats[field]
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func statTime(q *query.Query, field string) (time.Time, bool) {
	sec, ok := statInt64(q, field)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}
