package rule

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adobe/opentsdb-protector/internal/query"
)

func parseQuery(t *testing.T, aggregator string, tags map[string]interface{}) *query.Query {
	t.Helper()
	doc := map[string]interface{}{
		"start": "1h-ago",
		"queries": []interface{}{
			map[string]interface{}{
				"metric":     "sys.cpu.user",
				"aggregator": aggregator,
				"tags":       tags,
			},
		},
	}
	body, _ := json.Marshal(doc)
	q, err := query.Parse(body)
	require.NoError(t, err)
	return q
}

func TestQueryNoAggregatorDenies(t *testing.T) {
	r, err := New("query_no_aggregator", nil)
	require.NoError(t, err)

	q := parseQuery(t, "none", map[string]interface{}{"host": "web1"})
	v := r.Check(q)
	assert.True(t, v.Denied)
	assert.Equal(t, "query_no_aggregator", v.Rule)
}

func TestQueryNoAggregatorAllows(t *testing.T) {
	r, err := New("query_no_aggregator", nil)
	require.NoError(t, err)

	q := parseQuery(t, "sum", map[string]interface{}{"host": "web1"})
	assert.False(t, r.Check(q).Denied)
}

func TestQueryNoTagsFiltersDenies(t *testing.T) {
	r, err := New("query_no_tags_filters", nil)
	require.NoError(t, err)

	q := parseQuery(t, "sum", nil)
	assert.True(t, r.Check(q).Denied)
}

func TestTooManyDatapointsRequiresStats(t *testing.T) {
	r, err := New("too_many_datapoints", float64(1000))
	require.NoError(t, err)

	q := parseQuery(t, "sum", map[string]interface{}{"host": "web1"})
	assert.False(t, r.Check(q).Denied, "no stats attached is always Ok")

	q.Stats = map[string]string{"emittedDPs": "2000"}
	assert.True(t, r.Check(q).Denied)

	q.Stats = map[string]string{"emittedDPs": "500"}
	assert.False(t, r.Check(q).Denied)
}

func TestQueryOldDataDenies(t *testing.T) {
	r, err := New("query_old_data", float64(7))
	require.NoError(t, err)

	doc := map[string]interface{}{
		"start": "30d-ago",
		"queries": []interface{}{
			map[string]interface{}{"metric": "m", "aggregator": "sum"},
		},
	}
	body, _ := json.Marshal(doc)
	q, err := query.Parse(body)
	require.NoError(t, err)

	assert.True(t, r.Check(q).Denied)
}

func TestExceedTimeLimitStatic(t *testing.T) {
	r, err := New("exceed_time_limit", map[string]interface{}{
		"limit":    float64(20),
		"throttle": float64(300),
	})
	require.NoError(t, err)

	q := parseQuery(t, "sum", map[string]interface{}{"host": "web1"})

	q.Stats = map[string]string{
		"duration":  "20",
		"timestamp": fmtUnix(time.Now().Add(-210 * time.Second)),
	}
	assert.True(t, r.Check(q).Denied, "within throttle window should deny")

	q.Stats = map[string]string{
		"duration":  "20",
		"timestamp": fmtUnix(time.Now().Add(-310 * time.Second)),
	}
	assert.False(t, r.Check(q).Denied, "outside throttle window should allow")
}

func TestExceedTimeLimitAdaptive(t *testing.T) {
	r, err := New("exceed_time_limit", map[string]interface{}{
		"adaptive": float64(1.6),
	})
	require.NoError(t, err)

	q := parseQuery(t, "sum", map[string]interface{}{"host": "web1"})

	q.Stats = map[string]string{
		"duration":  "10",
		"timestamp": fmtUnix(time.Now().Add(-15 * time.Second)),
	}
	assert.True(t, r.Check(q).Denied)

	q.Stats = map[string]string{
		"duration":  "10",
		"timestamp": fmtUnix(time.Now().Add(-16 * time.Second)),
	}
	assert.False(t, r.Check(q).Denied)
}

func TestExceedTimeLimitAdaptivePreemptsStatic(t *testing.T) {
	r, err := New("exceed_time_limit", map[string]interface{}{
		"limit":    float64(100),
		"throttle": float64(1),
		"adaptive": float64(1.6),
	})
	require.NoError(t, err)

	q := parseQuery(t, "sum", map[string]interface{}{"host": "web1"})
	q.Stats = map[string]string{
		"duration":  "10",
		"timestamp": fmtUnix(time.Now().Add(-15 * time.Second)),
	}
	// static mode alone would allow (duration 10 < limit 100); adaptive
	// must preempt and deny.
	assert.True(t, r.Check(q).Denied)
}

func TestExceedFrequencyDenies(t *testing.T) {
	r, err := New("exceed_frequency", float64(60))
	require.NoError(t, err)

	q := parseQuery(t, "sum", map[string]interface{}{"host": "web1"})
	q.Stats = map[string]string{"timestamp": fmtUnix(time.Now().Add(-10 * time.Second))}
	assert.True(t, r.Check(q).Denied)

	q.Stats = map[string]string{"timestamp": fmtUnix(time.Now().Add(-120 * time.Second))}
	assert.False(t, r.Check(q).Denied)
}

func TestNewUnknownRule(t *testing.T) {
	_, err := New("not_a_real_rule", nil)
	require.Error(t, err)
}

func fmtUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
