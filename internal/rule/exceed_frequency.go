package rule

import (
	"time"

	"github.com/adobe/opentsdb-protector/internal/query"
)

// exceedFrequency denies a query that was last attempted no more than the
// configured number of seconds ago, regardless of how long it took.
type exceedFrequency struct {
	name         string
	minIntervalS int64
}

func newExceedFrequency(name string, param interface{}) (Rule, error) {
	seconds, err := paramInt(name, param)
	if err != nil {
		return nil, err
	}
	return &exceedFrequency{name: name, minIntervalS: seconds}, nil
}

func (r *exceedFrequency) Name() string { return r.name }

func (r *exceedFrequency) Check(q *query.Query) Verdict {
	if !hasStats(q) {
		return Ok()
	}
	lastTS, ok := statTime(q, "timestamp")
	if !ok {
		return Ok()
	}
	if time.Since(lastTS) <= time.Duration(r.minIntervalS)*time.Second {
		return Deny(r.name, "query exceeded allowed frequency")
	}
	return Ok()
}
