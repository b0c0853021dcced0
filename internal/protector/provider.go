package protector

import (
	"time"

	"github.com/google/wire"

	"github.com/adobe/opentsdb-protector/internal/config"
)

// ProviderSet exposes Protector construction to wire.
var ProviderSet = wire.NewSet(NewConfigFromAppConfig, New)

// canonicalRuleOrder is the fixed evaluation order applied to whichever
// rules appear in configuration. Configuration is a map (spec §6), which
// has no inherent order in Go after YAML/JSON decoding, so a stable order
// is fixed here rather than left to map iteration.
var canonicalRuleOrder = []string{
	"query_no_aggregator",
	"query_no_tags_filters",
	"too_many_datapoints",
	"query_old_data",
	"exceed_time_limit",
	"exceed_frequency",
}

// NewConfigFromAppConfig translates the application config into the
// Protector-specific Config, applying the canonical rule order to whatever
// rule names are present.
func NewConfigFromAppConfig(cfg *config.Config) Config {
	order := make([]string, 0, len(cfg.Rules))
	for _, name := range canonicalRuleOrder {
		if _, ok := cfg.Rules[name]; ok {
			order = append(order, name)
		}
	}

	return Config{
		RuleOrder:   order,
		RuleParams:  cfg.Rules,
		BlockedList: cfg.BlockedList,
		AllowedList: cfg.AllowedList,
		ExpireTTL:   time.Duration(cfg.DB.Expire) * time.Second,
	}
}
