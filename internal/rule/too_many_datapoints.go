package rule

import "github.com/adobe/opentsdb-protector/internal/query"

// tooManyDatapoints denies a query whose previous execution emitted more
// than the configured number of datapoints. Requires historical stats; a
// first sighting is always Ok.
type tooManyDatapoints struct {
	name  string
	limit int64
}

func newTooManyDatapoints(name string, param interface{}) (Rule, error) {
	limit, err := paramInt(name, param)
	if err != nil {
		return nil, err
	}
	return &tooManyDatapoints{name: name, limit: limit}, nil
}

func (r *tooManyDatapoints) Name() string { return r.name }

func (r *tooManyDatapoints) Check(q *query.Query) Verdict {
	if !hasStats(q) {
		return Ok()
	}
	emitted, ok := statInt64(q, "emittedDPs")
	if !ok {
		return Ok()
	}
	if emitted > r.limit {
		return Deny(r.name, "query previously emitted too many datapoints")
	}
	return Ok()
}
