package rule

import (
	"fmt"
	"time"

	"github.com/adobe/opentsdb-protector/internal/query"
)

// queryOldData denies a query whose requested start is further in the past
// than the configured number of days.
type queryOldData struct {
	name string
	days int64
}

func newQueryOldData(name string, param interface{}) (Rule, error) {
	days, err := paramInt(name, param)
	if err != nil {
		return nil, err
	}
	return &queryOldData{name: name, days: days}, nil
}

func (r *queryOldData) Name() string { return r.name }

func (r *queryOldData) Check(q *query.Query) Verdict {
	start, err := q.StartTimestamp()
	if err != nil {
		return Ok()
	}
	cutoff := time.Now().Add(-time.Duration(r.days) * 24 * time.Hour).Unix()
	if start < cutoff {
		return Deny(r.name, fmt.Sprintf("query requests data older than %d days", r.days))
	}
	return Ok()
}
