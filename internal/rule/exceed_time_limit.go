package rule

import (
	"time"

	"github.com/adobe/opentsdb-protector/internal/query"
)

// exceedTimeLimit throttles queries that recently took a long time to
// execute. Two mutually-configurable modes: static (fixed limit/throttle)
// and adaptive (throttle window scales with the last observed duration).
// When both are configured, adaptive preempts static.
type exceedTimeLimit struct {
	name string

	hasStatic bool
	limit     float64
	throttle  float64
	hasAdapt  bool
	adaptiveM float64
}

func newExceedTimeLimit(name string, param interface{}) (Rule, error) {
	m, err := paramMap(name, param)
	if err != nil {
		return nil, err
	}

	r := &exceedTimeLimit{name: name}

	if raw, ok := m["adaptive"]; ok {
		adaptive, err := paramFloat(name, raw)
		if err != nil {
			return nil, err
		}
		r.hasAdapt = true
		r.adaptiveM = adaptive
	}

	if limitRaw, ok := m["limit"]; ok {
		limit, err := paramFloat(name, limitRaw)
		if err != nil {
			return nil, err
		}
		throttleRaw, ok := m["throttle"]
		if !ok {
			return nil, errMissingThrottle(name)
		}
		throttle, err := paramFloat(name, throttleRaw)
		if err != nil {
			return nil, err
		}
		r.hasStatic = true
		r.limit = limit
		r.throttle = throttle
	}

	return r, nil
}

func errMissingThrottle(name string) error {
	return &configError{name: name, reason: "static mode requires both \"limit\" and \"throttle\""}
}

type configError struct {
	name   string
	reason string
}

func (e *configError) Error() string {
	return "rule \"" + e.name + "\": " + e.reason
}

func (r *exceedTimeLimit) Name() string { return r.name }

func (r *exceedTimeLimit) Check(q *query.Query) Verdict {
	if !hasStats(q) {
		return Ok()
	}

	duration, ok := statFloat(q, "duration")
	if !ok {
		return Ok()
	}
	lastTS, ok := statTime(q, "timestamp")
	if !ok {
		return Ok()
	}
	elapsed := time.Since(lastTS).Seconds()

	if r.hasAdapt {
		if elapsed < duration*r.adaptiveM {
			return Deny(r.name, "query exceeded adaptive time limit")
		}
		return Ok()
	}

	if r.hasStatic {
		if duration >= r.limit && elapsed < r.throttle {
			return Deny(r.name, "query exceeded time limit")
		}
	}

	return Ok()
}
