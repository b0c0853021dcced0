package rule

import "github.com/adobe/opentsdb-protector/internal/query"

// queryNoTagsFilters denies any sub-query that scopes neither by tags nor
// by filters, since such a query can scan every series of the metric.
type queryNoTagsFilters struct {
	name string
}

func newQueryNoTagsFilters(name string, _ interface{}) (Rule, error) {
	return &queryNoTagsFilters{name: name}, nil
}

func (r *queryNoTagsFilters) Name() string { return r.name }

func (r *queryNoTagsFilters) Check(q *query.Query) Verdict {
	for _, sub := range q.SubQueries() {
		if len(sub.Tags) == 0 && len(sub.Filters) == 0 {
			return Deny(r.name, "query has neither tags nor filters")
		}
	}
	return Ok()
}
