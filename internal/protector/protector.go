// Package protector orchestrates the per-request admission decision: block
// and allow lists, historical-stats loading, guard invocation, and stats
// recording after the backend replies.
package protector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/adobe/opentsdb-protector/internal/guard"
	"github.com/adobe/opentsdb-protector/internal/pkg/logger"
	"github.com/adobe/opentsdb-protector/internal/query"
	"github.com/adobe/opentsdb-protector/internal/store"
	"github.com/adobe/opentsdb-protector/internal/telemetry"
)

const (
	statsCacheTTL   = 10 * time.Second
	statsCacheSweep = time.Minute
)

// Decision is the outcome of Protector.Admit.
type Decision struct {
	Allowed      bool
	Rule         string
	Message      string
	AllowlistHit bool
}

// Protector is a singleton built once at startup and shared read-only
// (aside from its internally-synchronized cache and store) across every
// request-handling goroutine.
type Protector struct {
	guard     *guard.Guard
	store     store.StatsStore
	telemetry *telemetry.Telemetry

	blockedPatterns []*regexp.Regexp
	allowedPatterns []*regexp.Regexp

	expireTTL time.Duration

	statsCache *gocache.Cache
	statsSF    singleflight.Group
}

// Config carries the subset of configuration Protector needs; kept
// separate from internal/config.Config so this package has no import-cycle
// dependency on it.
type Config struct {
	RuleOrder   []string
	RuleParams  map[string]interface{}
	BlockedList []string
	AllowedList []string
	ExpireTTL   time.Duration
}

// New compiles block/allow patterns, builds the guard, and wires the
// statsCache + singleflight dedupe layer in front of the store.
func New(cfg Config, st store.StatsStore, tel *telemetry.Telemetry) (*Protector, error) {
	p := &Protector{
		guard:      guard.New(cfg.RuleOrder, cfg.RuleParams),
		store:      st,
		telemetry:  tel,
		expireTTL:  cfg.ExpireTTL,
		statsCache: gocache.New(statsCacheTTL, statsCacheSweep),
	}

	for _, pat := range cfg.BlockedList {
		re, err := regexp.Compile("^" + pat)
		if err != nil {
			return nil, fmt.Errorf("protector: invalid blockedlist pattern %q: %w", pat, err)
		}
		p.blockedPatterns = append(p.blockedPatterns, re)
	}
	for _, pat := range cfg.AllowedList {
		re, err := regexp.Compile("^" + pat)
		if err != nil {
			return nil, fmt.Errorf("protector: invalid allowedlist pattern %q: %w", pat, err)
		}
		p.allowedPatterns = append(p.allowedPatterns, re)
	}

	return p, nil
}

// Admit runs the full admission algorithm from spec §4.5: per-metric
// counters, blocklist, allowlist, stats attach, guard invocation.
func (p *Protector) Admit(ctx context.Context, q *query.Query) Decision {
	for _, metric := range q.MetricNames() {
		if p.telemetry != nil {
			p.telemetry.RequestsMetrics.WithLabelValues(metric).Inc()
		}
	}

	if p.matchesAny(p.blockedPatterns, q.MetricNames()) {
		return Decision{Allowed: false, Rule: "blockedlist", Message: "metric is blocked"}
	}

	if len(p.allowedPatterns) > 0 && p.allMatch(p.allowedPatterns, q.MetricNames()) {
		if p.telemetry != nil {
			p.telemetry.RequestsAllowedlistMatched.Inc()
		}
		return Decision{Allowed: true, AllowlistHit: true}
	}

	p.attachStats(ctx, q)

	v := p.guard.IsAllowed(q)
	if v.Denied {
		return Decision{Allowed: false, Rule: v.Rule, Message: v.Message}
	}
	return Decision{Allowed: true}
}

func (p *Protector) matchesAny(patterns []*regexp.Regexp, metrics []string) bool {
	for _, re := range patterns {
		for _, m := range metrics {
			if re.MatchString(m) {
				return true
			}
		}
	}
	return false
}

func (p *Protector) allMatch(patterns []*regexp.Regexp, metrics []string) bool {
	for _, m := range metrics {
		matched := false
		for _, re := range patterns {
			if re.MatchString(m) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// attachStats loads the IntervalStats hash for the query's bucket key and
// attaches it to q.Stats. Any store failure degrades silently to "no
// stats" per spec §5: decision-time load_stats never fails a request.
func (p *Protector) attachStats(ctx context.Context, q *query.Query) {
	bucket, err := q.BucketKey()
	if err != nil {
		return
	}

	if cached, ok := p.statsCache.Get(bucket); ok {
		if stats, ok := cached.(map[string]string); ok {
			q.Stats = stats
		}
		return
	}

	v, err, _ := p.statsSF.Do(bucket, func() (interface{}, error) {
		if err := p.store.Ping(ctx); err != nil {
			return map[string]string{}, nil
		}
		stats, err := p.store.HGetAll(ctx, bucket)
		if err != nil {
			logger.L().Sugar().Warnw("protector: load_stats failed, degrading to no-stats", "bucket", bucket, "error", err)
			return map[string]string{}, nil
		}
		p.statsCache.Set(bucket, stats, gocache.DefaultExpiration)
		return stats, nil
	})
	if err != nil {
		return
	}
	if stats, ok := v.(map[string]string); ok && len(stats) > 0 {
		q.Stats = stats
	}
}

// SaveStats records the outcome of a completed request: the query document,
// a new stats-log entry, the IntervalStats hash upsert, and leaderboard
// updates. Every operation is best-effort; failures are logged, never
// surfaced (spec §4.5, §5).
func (p *Protector) SaveStats(ctx context.Context, q *query.Query, emittedDPs int64, duration time.Duration, timedOut bool) {
	if err := p.store.Ping(ctx); err != nil {
		logger.L().Sugar().Warnw("protector: save_stats aborted, store unreachable", "error", err)
		return
	}

	bucket, err := q.BucketKey()
	if err != nil {
		return
	}
	now := time.Now()

	p.saveQueryDoc(ctx, q)
	p.appendStatsLogEntry(ctx, q, duration, timedOut)
	p.upsertIntervalStats(ctx, bucket, now, duration, emittedDPs, timedOut)
	p.updateLeaderboards(ctx, bucket, now, duration, emittedDPs, timedOut)

	// Invalidate the local cache so the next decision on this bucket sees
	// the fresh stats rather than a stale pre-save snapshot.
	p.statsCache.Delete(bucket)
}

func (p *Protector) saveQueryDoc(ctx context.Context, q *query.Query) {
	key := q.ID() + "_query"
	exists, err := p.store.Exists(ctx, key)
	if err != nil || exists {
		return
	}
	doc, err := q.ToOutboundJSON()
	if err != nil {
		return
	}
	if err := p.store.Set(ctx, key, string(doc), p.expireTTL); err != nil {
		logger.L().Sugar().Warnw("protector: failed to save query doc", "key", key, "error", err)
	}
}

func (p *Protector) appendStatsLogEntry(ctx context.Context, q *query.Query, duration time.Duration, timedOut bool) {
	key := q.ID() + "_stats"
	start, _ := q.StartTimestamp()
	end, _ := q.EndTimestamp()

	entry := fmt.Sprintf(
		`{"timestamp":%d,"start":%d,"end":%d,"duration":%f,"timeout":%t}`,
		time.Now().Unix(), start, end, duration.Seconds(), timedOut,
	)
	hadTTL, _ := p.store.Exists(ctx, key)
	if err := p.store.RPush(ctx, key, entry); err != nil {
		logger.L().Sugar().Warnw("protector: failed to append stats log", "key", key, "error", err)
		return
	}
	if !hadTTL && p.expireTTL > 0 {
		_ = p.store.Expire(ctx, key, p.expireTTL)
	}
}

func (p *Protector) upsertIntervalStats(ctx context.Context, bucket string, now time.Time, duration time.Duration, emittedDPs int64, timedOut bool) {
	fields := map[string]string{
		"duration":  strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		"timestamp": strconv.FormatInt(now.Unix(), 10),
	}
	if timedOut {
		fields["timeout_last"] = strconv.FormatInt(now.Unix(), 10)
	} else {
		fields["emittedDPs"] = strconv.FormatInt(emittedDPs, 10)
	}

	hadFirstOccurrence, _ := p.store.HExists(ctx, bucket, "first_occurrence")
	if !hadFirstOccurrence {
		fields["first_occurrence"] = strconv.FormatInt(now.Unix(), 10)
	}

	if err := p.store.HSet(ctx, bucket, fields); err != nil {
		logger.L().Sugar().Warnw("protector: failed to upsert interval stats", "bucket", bucket, "error", err)
		return
	}

	if _, err := p.store.HIncrBy(ctx, bucket, "total_counter", 1); err != nil {
		logger.L().Sugar().Warnw("protector: failed to increment total_counter", "bucket", bucket, "error", err)
	}
	if timedOut {
		if _, err := p.store.HIncrBy(ctx, bucket, "timeout_counter", 1); err != nil {
			logger.L().Sugar().Warnw("protector: failed to increment timeout_counter", "bucket", bucket, "error", err)
		}
	}

	if p.expireTTL > 0 {
		_ = p.store.Expire(ctx, bucket, p.expireTTL)
	}
}

// updateLeaderboards applies the monotonic-max compare-then-set pattern:
// not atomic against concurrent writers, which is acceptable per spec §5
// since leaderboards are advisory.
func (p *Protector) updateLeaderboards(ctx context.Context, bucket string, now time.Time, duration time.Duration, emittedDPs int64, timedOut bool) {
	day, hour := now.YearDay(), now.Hour()

	p.monotonicMaxUpdate(ctx, fmt.Sprintf("top_duration_%d_%d", day, hour), bucket, duration.Seconds())
	if !timedOut {
		p.monotonicMaxUpdate(ctx, fmt.Sprintf("top_dps_%d_%d", day, hour), bucket, float64(emittedDPs))
	}
}

func (p *Protector) monotonicMaxUpdate(ctx context.Context, set, member string, value float64) {
	current, ok, err := p.store.ZScore(ctx, set, member)
	if err != nil {
		logger.L().Sugar().Warnw("protector: leaderboard read failed", "set", set, "error", err)
		return
	}
	if ok && current >= value {
		return
	}
	if err := p.store.ZAdd(ctx, set, map[string]float64{member: value}); err != nil {
		logger.L().Sugar().Warnw("protector: leaderboard update failed", "set", set, "error", err)
		return
	}
	if p.expireTTL > 0 {
		_ = p.store.Expire(ctx, set, p.expireTTL)
	}
}

// GetTop returns the leaderboard for kind ("duration" or "dps"), scanning
// from the current hour back to hour 0 of the current day.
func (p *Protector) GetTop(ctx context.Context, kind string) (map[int][][2]interface{}, error) {
	now := time.Now()
	day := now.YearDay()

	out := make(map[int][][2]interface{})
	for hour := now.Hour(); hour >= 0; hour-- {
		set := fmt.Sprintf("top_%s_%d_%d", kind, day, hour)
		members, err := p.store.ZRangeWithScoresDesc(ctx, set)
		if err != nil {
			return nil, err
		}
		entries := make([][2]interface{}, 0, len(members))
		for _, m := range members {
			entries = append(entries, [2]interface{}{m.Member, m.Score})
		}
		out[hour] = entries
	}
	return out, nil
}

// Guard exposes the underlying guard for diagnostics (e.g. config
// validation at startup).
func (p *Protector) Guard() *guard.Guard { return p.guard }
