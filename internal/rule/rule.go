// Package rule implements the named, pure admission rules consulted by the
// guard. Each rule inspects a query (and whatever historical stats are
// attached to it) and returns a verdict; rules never mutate the query and
// never talk to the store directly.
package rule

import (
	"fmt"

	"github.com/adobe/opentsdb-protector/internal/query"
)

// Verdict is the outcome of a single rule check.
type Verdict struct {
	Denied  bool
	Rule    string
	Message string
}

// Ok reports that the rule has no objection.
func Ok() Verdict { return Verdict{} }

// Deny reports that the named rule refuses the query.
func Deny(rule, message string) Verdict {
	return Verdict{Denied: true, Rule: rule, Message: message}
}

// Rule is the common contract every admission check implements.
type Rule interface {
	// Name identifies the rule for logging and deny messages.
	Name() string
	// Check inspects the query and returns Ok or Deny.
	Check(q *query.Query) Verdict
}

// Constructor builds a Rule from its configured parameter, which may be
// nil, a scalar, or a map, depending on the rule.
type Constructor func(name string, param interface{}) (Rule, error)

// registry is the compile-time rule-name → constructor table, replacing the
// dynamic module lookup of the source implementation (spec §9).
var registry = map[string]Constructor{
	"query_no_aggregator":    newQueryNoAggregator,
	"query_no_tags_filters":  newQueryNoTagsFilters,
	"too_many_datapoints":    newTooManyDatapoints,
	"query_old_data":         newQueryOldData,
	"exceed_time_limit":      newExceedTimeLimit,
	"exceed_frequency":       newExceedFrequency,
}

// New constructs the rule registered under name, passing it param.
func New(name string, param interface{}) (Rule, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("rule: unknown rule %q", name)
	}
	return ctor(name, param)
}

// Names returns every rule name known to the registry, for validation and
// diagnostics.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
