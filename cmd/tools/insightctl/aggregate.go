package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/services"
)

func newAggregateCmd(flags *globalFlags) *cobra.Command {
	var ruleArg string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group and aggregate one data type",
		Example: `  insightctl aggregate --fixture data.json \
    --rule '{"dataType":"sessionData","groupBy":["stageId"],"aggregateBy":{"finalScore":["avg","max"]}}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rule aggregation.Rule
			if err := decodeArg(ruleArg, &rule); err != nil {
				return err
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				return printEnvelope(cmd.OutOrStdout(), rt.Service.GetAggregatedData(ctx, rule))
			})
		},
	}
	cmd.Flags().StringVar(&ruleArg, "rule", "", "Aggregation rule as JSON, or @file")
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func newAdvancedCmd(flags *globalFlags) *cobra.Command {
	var ruleArg string

	cmd := &cobra.Command{
		Use:   "advanced",
		Short: "Aggregate across data types with conditional and hierarchical grouping",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rule aggregation.AdvancedRule
			if err := decodeArg(ruleArg, &rule); err != nil {
				return err
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				return printEnvelope(cmd.OutOrStdout(), rt.Service.GetAdvancedAggregatedData(ctx, rule))
			})
		},
	}
	cmd.Flags().StringVar(&ruleArg, "rule", "", "Advanced rule as JSON, or @file")
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func newTimeSeriesCmd(flags *globalFlags) *cobra.Command {
	var ruleArg string

	cmd := &cobra.Command{
		Use:   "timeseries",
		Short: "Bucket one data type into fixed time intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rule aggregation.TimeSeriesRule
			if err := decodeArg(ruleArg, &rule); err != nil {
				return err
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				return printEnvelope(cmd.OutOrStdout(), rt.Service.GetTimeSeriesAggregation(ctx, rule))
			})
		},
	}
	cmd.Flags().StringVar(&ruleArg, "rule", "", "Time series rule as JSON, or @file")
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func newSummaryCmd(flags *globalFlags) *cobra.Command {
	var filterArg string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize session, interaction and performance records",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.Filter
			if err := decodeArg(filterArg, &filter); err != nil {
				return err
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				return printEnvelope(cmd.OutOrStdout(), rt.Service.GetStatsSummary(ctx, filter))
			})
		},
	}
	cmd.Flags().StringVar(&filterArg, "filter", "", "Record filter as JSON, or @file")
	return cmd
}

func newRecordsCmd(flags *globalFlags) *cobra.Command {
	var (
		filterArg string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "records <dataType>",
		Short: "List anonymized records of one data type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.Filter
			if err := decodeArg(filterArg, &filter); err != nil {
				return err
			}
			if raw {
				filter.SkipAnonymization = true
			}
			return flags.withRuntime(cmd, func(ctx context.Context, rt *services.Runtime, _ *config.Config) error {
				return printEnvelope(cmd.OutOrStdout(), rt.Service.GetRecords(ctx, args[0], filter))
			})
		},
	}
	cmd.Flags().StringVar(&filterArg, "filter", "", "Record filter as JSON, or @file")
	cmd.Flags().BoolVar(&raw, "skip-anonymization", false, "Return player ids as stored")
	return cmd
}
