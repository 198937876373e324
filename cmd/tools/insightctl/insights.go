package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soltixdb/insight/internal/analytics/anomaly"
	"github.com/soltixdb/insight/internal/analytics/comparison"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/queue"
	"github.com/soltixdb/insight/internal/services"
)

func newTrendCmd(flags *globalFlags) *cobra.Command {
	var ref string

	cmd := &cobra.Command{
		Use:   "trend <weekly|monthly> <metric>",
		Short: "Analyze the trend of a session metric",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			refTime, err := parseTime(ref)
			if err != nil {
				return err
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				return printEnvelope(cmd.OutOrStdout(), rt.Service.AnalyzeTrend(ctx, args[0], args[1], refTime))
			})
		},
	}
	cmd.Flags().StringVar(&ref, "reference-date", "", "RFC3339 reference date (default now)")
	return cmd
}

func newAnomaliesCmd(flags *globalFlags) *cobra.Command {
	var start, end, thresholds string

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Detect anomalies in a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := parseWindow(start, end)
			if err != nil {
				return err
			}
			var update anomaly.ThresholdUpdate
			if err := decodeArg(thresholds, &update); err != nil {
				return err
			}

			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				if thresholds != "" {
					if env := rt.Service.UpdateThresholds(ctx, update); !env.Success {
						return printEnvelope(cmd.OutOrStdout(), env)
					}
				}
				return printEnvelope(cmd.OutOrStdout(), rt.Service.DetectAnomalies(ctx, window))
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 window start")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 window end")
	cmd.Flags().StringVar(&thresholds, "thresholds", "", "Threshold overrides as JSON, or @file")
	return cmd
}

func newAlertsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Follow published anomaly alerts",
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print alert batches as they are published to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, cfg *config.Config) error {
				subject := queue.Subject(cfg.Queue)
				out := cmd.OutOrStdout()
				err := rt.Queue.Subscribe(subject, func(data []byte) error {
					var batch anomaly.AlertBatch
					if err := json.Unmarshal(data, &batch); err != nil {
						return err
					}
					for _, a := range batch.Anomalies {
						fmt.Fprintf(out, "%s  %-8s %-20s %s\n",
							batch.DetectedAt.Format(time.RFC3339), a.Severity, a.Type, a.Description)
					}
					return nil
				})
				if err != nil {
					return fmt.Errorf("subscribe %s: %w", subject, err)
				}
				defer func() { _ = rt.Queue.Unsubscribe(subject) }()

				fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (%s), press Ctrl+C to stop\n", subject, cfg.Queue.Type)
				<-ctx.Done()
				return nil
			})
		},
	}

	cmd.AddCommand(watch)
	return cmd
}

func newCompareCmd(flags *globalFlags) *cobra.Command {
	var opts compareFlags

	cmd := &cobra.Command{
		Use:       "compare <past|benchmark|stages>",
		Short:     "Compare sessions against history, the player cohort or across stages",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"past", "benchmark", "stages"},
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.options()
			if err != nil {
				return err
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				switch args[0] {
				case "past":
					return printEnvelope(cmd.OutOrStdout(), rt.Service.CompareWithPastData(ctx, o))
				case "benchmark":
					return printEnvelope(cmd.OutOrStdout(), rt.Service.CompareWithBenchmark(ctx, o))
				default:
					return printEnvelope(cmd.OutOrStdout(), rt.Service.CompareByStage(ctx, o))
				}
			})
		},
	}
	opts.register(cmd)
	return cmd
}

func newImprovementCmd(flags *globalFlags) *cobra.Command {
	var (
		opts    compareFlags
		improve comparison.ImprovementOptions
		plan    bool
		pref    string
	)

	cmd := &cobra.Command{
		Use:   "improvement",
		Short: "Suggest improvement targets, or build a personalized plan with --plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.options()
			if err != nil {
				return err
			}
			improve.DifficultyPreference = comparison.Preference(pref)
			req := services.ImprovementRequest{Options: o, ImprovementOptions: improve}

			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				if plan {
					return printEnvelope(cmd.OutOrStdout(), rt.Service.GenerateImprovementPlan(ctx, req))
				}
				return printEnvelope(cmd.OutOrStdout(), rt.Service.GenerateImprovementSuggestions(ctx, req))
			})
		},
	}
	opts.register(cmd)
	f := cmd.Flags()
	f.BoolVar(&plan, "plan", false, "Build a personalized plan (requires --player)")
	f.IntVar(&improve.FocusAreas, "focus-areas", 0, "Number of focus areas in the plan")
	f.IntVar(&improve.TimeHorizon, "time-horizon", 0, "Plan length in days")
	f.StringVar(&pref, "difficulty", "", "Difficulty preference (gradual, balanced, challenging)")
	f.BoolVar(&improve.IncludeMotivationalElements, "motivation", false, "Include motivational elements")
	return cmd
}

// compareFlags are shared by the comparison and improvement commands
type compareFlags struct {
	periods  []string
	period   string
	metrics  []string
	player   string
	now      string
	adjusted bool
}

func (f *compareFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.periods, "periods", nil, "Historical periods to compare (week, month, quarter)")
	fs.StringVar(&f.period, "period", "", "Window for benchmark and stage comparisons")
	fs.StringSliceVar(&f.metrics, "metrics", nil, "Metrics to compare (default all)")
	fs.StringVar(&f.player, "player", "", "Player ID")
	fs.StringVar(&f.now, "now", "", "RFC3339 time treated as now")
	fs.BoolVar(&f.adjusted, "difficulty-adjusted", false, "Include difficulty adjusted stage figures")
}

func (f *compareFlags) options() (comparison.Options, error) {
	opts := comparison.Options{
		PlayerID:                    f.player,
		IncludeDifficultyAdjustment: f.adjusted,
	}

	for _, raw := range f.periods {
		p, err := comparison.ParsePeriod(raw)
		if err != nil {
			return opts, err
		}
		opts.Periods = append(opts.Periods, p)
	}
	if f.period != "" {
		p, err := comparison.ParsePeriod(f.period)
		if err != nil {
			return opts, err
		}
		opts.Period = p
	}
	for _, raw := range f.metrics {
		m, err := trend.ParseMetric(raw)
		if err != nil {
			return opts, err
		}
		opts.Metrics = append(opts.Metrics, m)
	}

	now, err := parseTime(f.now)
	if err != nil {
		return opts, err
	}
	opts.Now = now
	return opts, nil
}

// parseTime accepts RFC3339; empty yields the zero time
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC3339", value)
	}
	return t, nil
}

// parseWindow returns nil when neither bound is set; a missing bound takes the detector default
func parseWindow(start, end string) (*anomaly.Window, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	s, err := parseTime(start)
	if err != nil {
		return nil, err
	}
	e, err := parseTime(end)
	if err != nil {
		return nil, err
	}
	return &anomaly.Window{Start: s, End: e}, nil
}
