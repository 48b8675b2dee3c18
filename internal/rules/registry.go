package rules

import (
	"github.com/sirupsen/logrus"

	"net-scout/internal/config"
	"net-scout/internal/rules/builtin"
	"net-scout/internal/store"
)

// NewEngineWithBuiltins builds an engine with the three builtin detection
// rules wired to the event store. Registration order fixes the merge order:
// horizontal scan, vertical scan, connection volume.
func NewEngineWithBuiltins(events store.EventStore, cfg config.DetectionConfig, logger *logrus.Logger) *Engine {
	engine := NewEngine(cfg.MaxAlertsPerRun, logger)
	engine.RegisterRule(builtin.NewHorizontalScanRule(events,
		cfg.HorizontalDstIPThreshold, cfg.HorizontalConnThreshold, cfg.PerRuleLimit, logger))
	engine.RegisterRule(builtin.NewVerticalScanRule(events,
		cfg.VerticalPortsThreshold, cfg.PerRuleLimit, logger))
	engine.RegisterRule(builtin.NewConnectionVolumeRule(events,
		cfg.RepeatedConnThreshold, cfg.PerRuleLimit, logger))
	return engine
}
