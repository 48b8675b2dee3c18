package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"net-scout/internal/alert"
	"net-scout/internal/config"
	"net-scout/internal/pipeline"
	"net-scout/internal/store"
	"net-scout/internal/utils"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/net-scout.yaml", "Configuration file path (YAML)")
		since       = flag.String("since", "", "Time window to scan (e.g. '1 hour', '30 minutes', or ISO timestamp)")
		enrich      = flag.Bool("enrich", false, "Run enrichment (reverse DNS, whois, traceroute) for detected alerts")
		dryRun      = flag.Bool("dry-run", false, "Do not insert alerts; just report them")
		enrichOnly  = flag.Bool("enrich-only", false, "Skip detection; enrich pending alerts")
		enrichLimit = flag.Int("limit", 0, "Max alerts to enrich with --enrich-only (default from config)")
		alertID     = flag.Int64("alert-id", 0, "Enrich a single alert by id")
		traceTarget = flag.String("trace", "", "Run a path trace against a target IP and exit")
		traceAlert  = flag.Int64("trace-alert", 0, "Run a path trace against an alert's endpoint and exit")
		maxHops     = flag.Int("max-hops", 30, "Max hops for --trace")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("net-scout v1.0.0")
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load config %s: %v\n", *configFile, err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	st, err := store.NewPostgresStore(cfg.Database.DSN(), logger)
	if err != nil {
		logger.Errorf("Store not found: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if !*dryRun {
		if err := st.EnsureSchema(ctx); err != nil {
			logger.Errorf("Migration failed: %v", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Dry-run: skipping schema migration, no writes will be performed")
	}

	scanner := pipeline.NewScanner(st, cfg, logger)
	scanner.RegisterNotifier(alert.NewLogAlertNotifier(logger))
	if cfg.Alerting.Telegram.Enabled {
		scanner.RegisterNotifier(alert.NewTelegramNotifier(cfg.Alerting.Telegram, logger))
	}

	switch {
	case *traceTarget != "" || *traceAlert > 0:
		result, err := scanner.RunTrace(ctx, *traceTarget, *traceAlert, *maxHops)
		if err != nil {
			logger.Errorf("Trace failed: %v", err)
			os.Exit(1)
		}
		fmt.Println(result.RawOutput)
		logger.Infof("Parsed %d hops for %s", len(result.Hops), result.Target)

	case *enrichOnly || (*alertID > 0):
		if *alertID > 0 {
			outcome, err := scanner.EnrichAlert(ctx, *alertID)
			if err != nil {
				logger.Errorf("Failed to enrich alert %d: %v", *alertID, err)
				os.Exit(1)
			}
			logger.Infof("Enriched alert %d (%d subjects)", outcome.AlertID, outcome.Subjects)
			return
		}
		outcomes, err := scanner.EnrichAlerts(ctx, *enrichLimit)
		if err != nil {
			logger.Errorf("Enrichment failed: %v", err)
			os.Exit(1)
		}
		logger.Infof("Enriched %d alerts", len(outcomes))

	default:
		sinceArg := *since
		if sinceArg == "" {
			sinceArg = cfg.Detection.DefaultSince
		}
		windowStart := pipeline.ParseSince(sinceArg, time.Now())

		result, err := scanner.RunDetection(ctx, windowStart, *enrich, *dryRun)
		if err != nil {
			logger.Errorf("Detection run failed: %v", err)
			os.Exit(1)
		}
		logger.Infof("Run %s: %d candidates, %d inserted, %d skipped, %d errors",
			result.RunID, result.Candidates, result.Inserted, result.Skipped, result.Errors)
		for _, rule := range result.RuleFailures {
			logger.Warnf("Rule failed during this run: %s", rule)
		}
	}
}
