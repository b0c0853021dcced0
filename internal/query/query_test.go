package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBody(start interface{}) []byte {
	doc := map[string]interface{}{
		"start": start,
		"queries": []interface{}{
			map[string]interface{}{
				"metric":     "sys.cpu.user",
				"aggregator": "sum",
				"tags":       map[string]interface{}{"host": "web1"},
			},
		},
	}
	b, _ := json.Marshal(doc)
	return b
}

func TestParseRejectsMissingQueries(t *testing.T) {
	_, err := Parse([]byte(`{"start": "1h-ago"}`))
	require.Error(t, err)
	var bq *BadQueryError
	require.ErrorAs(t, err, &bq)
}

func TestParseRejectsMissingStart(t *testing.T) {
	_, err := Parse([]byte(`{"queries": [{"metric": "m", "aggregator": "sum"}]}`))
	require.Error(t, err)
}

func TestParseRejectsEmptyQueries(t *testing.T) {
	_, err := Parse([]byte(`{"start": "1h-ago", "queries": []}`))
	require.Error(t, err)
}

func TestParseRejectsBadRelativeGrammar(t *testing.T) {
	_, err := Parse(sampleBody("bogus-ago"))
	require.Error(t, err)
}

func TestStartTimestampAbsoluteSeconds(t *testing.T) {
	q, err := Parse(sampleBody("1600000000"))
	require.NoError(t, err)
	ts, err := q.StartTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1600000000), ts)
}

func TestStartTimestampAbsoluteMilliseconds(t *testing.T) {
	q, err := Parse(sampleBody("1600000000123"))
	require.NoError(t, err)
	ts, err := q.StartTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1600000000), ts)
}

func TestStartTimestampRelative(t *testing.T) {
	q, err := Parse(sampleBody("1h-ago"))
	require.NoError(t, err)
	ts, err := q.StartTimestamp()
	require.NoError(t, err)
	expected := time.Now().Add(-time.Hour).Unix()
	assert.InDelta(t, expected, ts, 2)
}

func TestStartTimestampRelativeMonthsAndYears(t *testing.T) {
	q, err := Parse(sampleBody("1n-ago"))
	require.NoError(t, err)
	ts, err := q.StartTimestamp()
	require.NoError(t, err)
	expected := time.Now().Add(-30 * 24 * time.Hour).Unix()
	assert.InDelta(t, expected, ts, 2)

	q2, err := Parse(sampleBody("1y-ago"))
	require.NoError(t, err)
	ts2, err := q2.StartTimestamp()
	require.NoError(t, err)
	expected2 := time.Now().Add(-365 * 24 * time.Hour).Unix()
	assert.InDelta(t, expected2, ts2, 2)
}

func TestEndTimestampDefaultsToNow(t *testing.T) {
	q, err := Parse(sampleBody("1h-ago"))
	require.NoError(t, err)
	end, err := q.EndTimestamp()
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), end, 2)
}

func TestMetricNames(t *testing.T) {
	q, err := Parse(sampleBody("1h-ago"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sys.cpu.user"}, q.MetricNames())
}

func TestFingerprintStableAcrossTimeWindowShifts(t *testing.T) {
	q1, err := Parse(sampleBody("1h-ago"))
	require.NoError(t, err)
	q2, err := Parse(sampleBody("2h-ago"))
	require.NoError(t, err)
	assert.Equal(t, q1.ID(), q2.ID())
}

func TestFingerprintInvariantUnderKeyPermutation(t *testing.T) {
	docA := `{"start":"1h-ago","queries":[{"metric":"m","aggregator":"sum"}]}`
	docB := `{"queries":[{"aggregator":"sum","metric":"m"}],"start":"1h-ago"}`

	qa, err := Parse([]byte(docA))
	require.NoError(t, err)
	qb, err := Parse([]byte(docB))
	require.NoError(t, err)

	assert.Equal(t, qa.ID(), qb.ID())
}

func TestFingerprintChangesWithShape(t *testing.T) {
	q1, err := Parse(sampleBody("1h-ago"))
	require.NoError(t, err)

	body := `{"start":"1h-ago","queries":[{"metric":"other.metric","aggregator":"sum"}]}`
	q2, err := Parse([]byte(body))
	require.NoError(t, err)

	assert.NotEqual(t, q1.ID(), q2.ID())
}

func TestToOutboundJSONAddsDirectives(t *testing.T) {
	q, err := Parse(sampleBody("1h-ago"))
	require.NoError(t, err)

	out, err := q.ToOutboundJSON()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, true, doc["showStats"])
	assert.Equal(t, true, doc["showQuery"])
}

func TestBucketKey(t *testing.T) {
	body := `{"start":1600000000,"end":1600003600,"queries":[{"metric":"m","aggregator":"sum"}]}`
	q, err := Parse([]byte(body))
	require.NoError(t, err)
	key, err := q.BucketKey()
	require.NoError(t, err)
	assert.Equal(t, q.ID()+"_60", key)
}
