package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/services"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
)

// globalFlags override the loaded configuration
type globalFlags struct {
	configPath string
	sourceType string
	dsn        string
	fixture    string
	queueType  string
	queueURL   string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var failed *envelopeError
		if !errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "insightctl",
		Short: "Run gameplay analytics against a record source",
		Long: `insightctl runs the aggregation, trend, anomaly and comparison engines
directly against a record source and prints the response envelope as JSON.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("insightctl %s (%s)\n", Version, GitCommit))
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to configuration file")
	pf.StringVar(&flags.sourceType, "source", "", "Record source type (memory, postgres)")
	pf.StringVar(&flags.dsn, "dsn", "", "Postgres connection string")
	pf.StringVar(&flags.fixture, "fixture", "", "JSON fixture loaded into the memory source")
	pf.StringVar(&flags.queueType, "queue", "", "Alert queue type (none, memory, nats, redis, kafka)")
	pf.StringVar(&flags.queueURL, "queue-url", "", "Alert queue URL")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level written to stderr")

	root.AddCommand(
		newAggregateCmd(flags),
		newAdvancedCmd(flags),
		newTimeSeriesCmd(flags),
		newSummaryCmd(flags),
		newRecordsCmd(flags),
		newTrendCmd(flags),
		newAnomaliesCmd(flags),
		newAlertsCmd(flags),
		newCompareCmd(flags),
		newImprovementCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the insightctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "insightctl %s (%s)\n", Version, GitCommit)
		},
	}
}

// loadConfig applies the command line overrides on top of the config file
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.sourceType != "" {
		cfg.Source.Type = f.sourceType
	}
	if f.dsn != "" {
		cfg.Source.DSN = f.dsn
	}
	if f.fixture != "" {
		cfg.Source.FixturePath = f.fixture
	}
	if f.queueType != "" {
		cfg.Queue.Type = f.queueType
	}
	if f.queueURL != "" {
		cfg.Queue.URL = f.queueURL
	}

	// stdout carries the JSON output
	cfg.Logging.OutputPath = "stderr"
	cfg.Logging.Level = f.logLevel
	return cfg, nil
}

// withRuntime bootstraps the service for one command and releases it afterwards
func (f *globalFlags) withRuntime(cmd *cobra.Command, run func(ctx context.Context, rt *services.Runtime, cfg *config.Config) error) error {
	cfg, err := f.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(logger)

	rt, err := services.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to release resources", "error", err)
		}
	}()

	return run(cmd.Context(), rt, cfg)
}

// printEnvelope writes env as indented JSON and turns a failed envelope into an error
func printEnvelope(w io.Writer, env models.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	if !env.Success {
		failed := &envelopeError{code: services.CodeInternalError}
		if env.Error != nil {
			failed.code = env.Error.Code
		}
		return failed
	}
	return nil
}

// envelopeError reports a failed envelope that was already printed
type envelopeError struct {
	code string
}

func (e *envelopeError) Error() string {
	return "request failed: " + e.code
}

// decodeArg parses an inline JSON document, or a file when the value starts with @
func decodeArg(value string, out interface{}) error {
	if value == "" {
		return nil
	}

	var r io.Reader = strings.NewReader(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}
