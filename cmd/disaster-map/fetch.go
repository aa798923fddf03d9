package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mr1hm/go-disaster-map/internal/eventlist"
	"github.com/mr1hm/go-disaster-map/internal/logging"
	"github.com/mr1hm/go-disaster-map/internal/models"
)

type fetchFlags struct {
	search    string
	severity  string
	eventType string
	dedup     bool
	timeout   time.Duration
	compact   bool
}

type fetchOutput struct {
	Status   models.Status          `json:"status"`
	Fallback bool                   `json:"fallback"`
	Sources  []models.SourceStatus  `json:"sources"`
	Stats    eventlist.Stats        `json:"stats"`
	Events   []models.DisasterEvent `json:"events"`
}

func newFetchCmd() *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one aggregation pass and print the events as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.search, "search", "q", "", "case-insensitive title/address filter")
	cmd.Flags().StringVar(&f.severity, "severity", eventlist.SeverityAll, "severity filter (all, low, medium, high, critical)")
	cmd.Flags().StringVar(&f.eventType, "type", "", "event type filter (earthquake, flood, fire, storm, emergency)")
	cmd.Flags().BoolVar(&f.dedup, "dedup", false, "drop near-duplicate events across sources")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "overall deadline for the pass")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "print compact JSON")
	return cmd
}

func runFetch(cmd *cobra.Command, f fetchFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the result; logs go to stderr.
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))

	severity := strings.ToLower(strings.TrimSpace(f.severity))
	if severity != eventlist.SeverityAll && severity != "" && !models.ParseSeverity(severity).Valid() {
		return fmt.Errorf("invalid severity %q", f.severity)
	}
	eventType := models.ParseEventType(f.eventType)
	if eventType != "" && !eventType.Valid() {
		return fmt.Errorf("invalid event type %q", f.eventType)
	}

	opts := aggregatorOptions(cfg)
	if f.dedup {
		opts.Dedup = true
	}
	logSources(opts)

	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()

	res := newAggregator(cfg).Aggregate(ctx, opts)
	events := eventlist.Apply(res.Events, eventlist.Filter{Search: f.search, Severity: severity, Type: eventType})

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !f.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(fetchOutput{
		Status:   res.Status,
		Fallback: res.Fallback,
		Sources:  res.Sources,
		Stats:    eventlist.Summarize(events),
		Events:   events,
	})
}
