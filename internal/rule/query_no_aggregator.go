package rule

import "github.com/adobe/opentsdb-protector/internal/query"

// queryNoAggregator denies any query where a sub-query explicitly opts out
// of aggregation, which tends to return unbounded per-series data.
type queryNoAggregator struct {
	name string
}

func newQueryNoAggregator(name string, _ interface{}) (Rule, error) {
	return &queryNoAggregator{name: name}, nil
}

func (r *queryNoAggregator) Name() string { return r.name }

func (r *queryNoAggregator) Check(q *query.Query) Verdict {
	for _, sub := range q.SubQueries() {
		if sub.Aggregator == "none" {
			return Deny(r.name, "aggregator \"none\" is not allowed")
		}
	}
	return Ok()
}
