// Package guard composes an ordered, configured set of rules into a single
// admission decision.
package guard

import (
	"github.com/adobe/opentsdb-protector/internal/pkg/logger"
	"github.com/adobe/opentsdb-protector/internal/query"
	"github.com/adobe/opentsdb-protector/internal/rule"
)

// Guard holds the active, ordered rule set built from configuration.
type Guard struct {
	order []string
	rules []rule.Rule
}

// New builds a Guard from an ordered list of rule names and their
// configured parameters. A rule that fails to construct is logged and
// skipped; the remaining rules still form the active set.
func New(order []string, params map[string]interface{}) *Guard {
	g := &Guard{}
	for _, name := range order {
		r, err := rule.New(name, params[name])
		if err != nil {
			logger.L().Sugar().Warnw("guard: skipping rule that failed to load", "rule", name, "error", err)
			continue
		}
		g.order = append(g.order, name)
		g.rules = append(g.rules, r)
	}
	return g
}

// IsAllowed runs every configured rule in order and returns the first
// denial, or Ok if none deny. An empty query (no sub-queries) is itself a
// denial.
func (g *Guard) IsAllowed(q *query.Query) rule.Verdict {
	if q == nil || len(q.SubQueries()) == 0 {
		return rule.Deny("empty_query", "Empty query")
	}
	for _, r := range g.rules {
		if v := r.Check(q); v.Denied {
			return v
		}
	}
	return rule.Ok()
}
