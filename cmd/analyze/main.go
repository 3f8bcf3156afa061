// Offline batch analysis of a transaction file.
//
// Usage:
//
//	go run ./cmd/analyze -in data/user_transactions.csv -out data/output.csv -report data/report.json
//
// This tool:
//  1. Loads the data set (CSV or JSON)
//  2. Builds user profiles and applies every detection rule
//  3. Writes the annotated data set and the JSON report
//  4. Prints the report and a sample of flagged transactions
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/opensource-finance/harrier/internal/config"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/telemetry"
)

const sampleSize = 10

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	in := flag.String("in", cfg.Data.InputPath, "input transactions (.csv or .json)")
	out := flag.String("out", cfg.Data.OutputPath, "annotated CSV output (empty to skip)")
	reportPath := flag.String("report", cfg.Data.ReportPath, "JSON report output (empty to skip)")
	window := flag.Int("velocity-window", cfg.Rules.VelocityWindowMinutes, "velocity window in minutes")
	count := flag.Int("velocity-count", cfg.Rules.VelocityThresholdCount, "transactions within the window that trigger the velocity rule")
	tolerance := flag.Int("hour-tolerance", cfg.Rules.TimeAnomalyHourTolerance, "allowed distance in hours from an active hour")
	merchantRisk := flag.Float64("merchant-risk", cfg.Rules.MerchantAnomalyRiskThreshold, "merchant anomaly risk threshold")
	stdThreshold := flag.Float64("amount-std", cfg.Rules.AmountDeviationStdThreshold, "amount z-score threshold")
	minHistory := flag.Int("min-history", cfg.Rules.MinUserHistory, "minimum transactions before a user is profiled")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		cfg.Logging.Level = "debug"
	}
	slog.SetDefault(telemetry.NewLogger(domain.LoggingConfig{Level: cfg.Logging.Level, Format: "text"}, os.Stderr))

	cfg.Rules = domain.RuleConfig{
		VelocityWindowMinutes:        *window,
		VelocityThresholdCount:       *count,
		TimeAnomalyHourTolerance:     *tolerance,
		MerchantAnomalyRiskThreshold: *merchantRisk,
		AmountDeviationStdThreshold:  *stdThreshold,
		MinUserHistory:               *minHistory,
	}
	cfg.Data.Source = domain.SourceFile
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	engine := rules.NewEngine(cfg.Rules, rules.WithRules(rules.DefaultSet(cfg.Rules)...))
	mon := monitor.New(engine, ingest.FileSource{Path: *in}, monitor.WithExports(*out, *reportPath))

	run, err := mon.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	printReport(run)
	printSample(run.Flagged)

	if (*out != "" && !run.OutputExported) || (*reportPath != "" && !run.ReportExported) {
		os.Exit(1)
	}
}

func printReport(run *domain.Run) {
	r := run.Report

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("  HARRIER ANALYSIS REPORT")
	fmt.Println("========================================")
	fmt.Printf("  Transactions:   %d\n", r.TotalTransactions)
	fmt.Printf("  Suspicious:     %d (%.2f%%)\n", r.SuspiciousTransactions, r.SuspiciousPercentage)
	fmt.Printf("  Users:          %d\n", r.TotalUsers)
	fmt.Printf("  Users flagged:  %d (%.2f%%)\n", r.UsersWithFlags, r.UsersWithFlagsPercentage)
	fmt.Println()
	fmt.Println("  Rule results:")
	for _, res := range run.RuleResults {
		fmt.Printf("    %-20s %d\n", res.Rule, res.Flagged)
	}
	fmt.Println()
	fmt.Println("  Breakdown by reason:")
	for _, category := range slices.Sorted(maps.Keys(r.RuleBreakdown)) {
		fmt.Printf("    %-20s %d\n", category, r.RuleBreakdown[category])
	}
	fmt.Println()
	fmt.Printf("  Profiles built: %d in %dms\n", run.Metadata.ProfilesBuilt, run.Metadata.TotalMs)
	fmt.Println("========================================")
}

func printSample(flagged []*domain.Transaction) {
	if len(flagged) == 0 {
		fmt.Println("No suspicious transactions detected.")
		return
	}

	fmt.Println()
	fmt.Println("Sample of flagged transactions:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "userId\ttimestamp\tmerchantName\tamount\tflag_reasons")
	for i, tx := range flagged {
		if i == sampleSize {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n",
			tx.UserID,
			tx.Timestamp.Format("2006-01-02 15:04:05"),
			tx.MerchantName,
			tx.Amount,
			tx.FlagReasons(),
		)
	}
	tw.Flush()
}
