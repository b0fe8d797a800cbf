package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"revstats/internal/config"
	"revstats/internal/history"
	"revstats/internal/logging"
	"revstats/internal/pipeline"
)

// Define common errors for the application layer.
var (
	ErrUsage          = errors.New("usage error")
	ErrConfigNotFound = errors.New("configuration file not found")
)

// DefaultConfigFile is read when present; its absence is not an error.
const DefaultConfigFile = "revstats.yaml"

// RunOptions are the per-run settings taken from the command line.
type RunOptions struct {
	Range   config.DateRange
	Tag     config.Tag
	NoEmail bool
}

// --- Interfaces for Testability ---

type configLoader interface {
	Load(filename string) (*config.Config, error)
}

type credentialsLoader interface {
	Load() (*config.Credentials, error)
}

type pipelineRunner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// pipelineFactory builds a ready-to-run pipeline. The returned cleanup
// releases whatever the pipeline opened and is never nil on success.
type pipelineFactory interface {
	New(cfg *config.Config, creds *config.Credentials, opts RunOptions) (pipelineRunner, func(), error)
}

type runLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
	Close() error
}

type historyOpener interface {
	Open(path string) (runLister, error)
}

// --- Default Implementations ---

type defaultConfigLoader struct{}

func (l *defaultConfigLoader) Load(filename string) (*config.Config, error) {
	return config.LoadConfig(filename)
}

type envCredentialsLoader struct{}

func (l *envCredentialsLoader) Load() (*config.Credentials, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	return config.LoadCredentials()
}

type defaultHistoryOpener struct{}

func (o *defaultHistoryOpener) Open(path string) (runLister, error) {
	return history.Open(path)
}

// --- AppRunner ---

// AppRunner encapsulates the application's execution logic and dependencies.
type AppRunner struct {
	configLoader      configLoader
	credentialsLoader credentialsLoader
	pipelineFactory   pipelineFactory
	historyOpener     historyOpener
	stdout            io.Writer
	stderr            io.Writer
}

// AppRunnerOpts allows configuring the AppRunner's dependencies.
type AppRunnerOpts struct {
	ConfigLoader      configLoader
	CredentialsLoader credentialsLoader
	PipelineFactory   pipelineFactory
	HistoryOpener     historyOpener
	Stdout            io.Writer
	Stderr            io.Writer
}

// NewAppRunner creates a new instance of the application runner with default dependencies.
func NewAppRunner() *AppRunner {
	return NewAppRunnerWithOpts(AppRunnerOpts{})
}

// NewAppRunnerWithOpts creates a new AppRunner allowing dependency injection.
func NewAppRunnerWithOpts(opts AppRunnerOpts) *AppRunner {
	a := &AppRunner{
		configLoader:      opts.ConfigLoader,
		credentialsLoader: opts.CredentialsLoader,
		pipelineFactory:   opts.PipelineFactory,
		historyOpener:     opts.HistoryOpener,
		stdout:            opts.Stdout,
		stderr:            opts.Stderr,
	}
	if a.configLoader == nil {
		a.configLoader = &defaultConfigLoader{}
	}
	if a.credentialsLoader == nil {
		a.credentialsLoader = &envCredentialsLoader{}
	}
	if a.pipelineFactory == nil {
		a.pipelineFactory = &defaultPipelineFactory{}
	}
	if a.historyOpener == nil {
		a.historyOpener = &defaultHistoryOpener{}
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	return a
}

// usageText defines the command-line help information.
const usageText = `Usage:
  revstats [options]

Fetches Revcontent widget stats for every boost, writes them to a CSV file
and emails the file through SendGrid.

Options:
  -date-from string
        First day of the report, YYYY-MM-DD (default yesterday)
  -date-to string
        Last day of the report, YYYY-MM-DD (requires -date-from)
  -tag string
        Extra leading column as name:value (for example month:january)
  -config string
        YAML configuration file (default "revstats.yaml", optional)
  -output-dir string
        Directory for the CSV report (overrides report.output_dir)
  -loglevel string
        Logging level (none, error, warn, info, debug) (default "info")
  -no-email
        Write the report but do not send it
  -runs int
        Print the last N recorded runs and exit
  -help
        Show help

Environment:
  REVCONTENT_CLIENT_ID, REVCONTENT_CLIENT_SECRET (required)
  SENDGRID_API_KEY, SENDGRID_SEND_FROM_EMAIL, SENDGRID_SEND_FROM_NAME,
  SENDGRID_SEND_TO_EMAIL (required to send email)
  A .env file in the working directory is loaded first if present.

Examples:
  revstats
  revstats -date-from 2024-01-01 -date-to 2024-01-31 -tag month:january
  revstats -date-from 2024-01-01 -no-email -loglevel debug
`

// Usage prints the command-line help information to the specified writer.
func (a *AppRunner) Usage(writer io.Writer) {
	fmt.Fprint(writer, usageText)
}

// Run parses command-line arguments and executes one report run.
func (a *AppRunner) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revstats", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // Prevent flagset from printing errors/usage

	dateFrom := fs.String("date-from", "", "First day of the report (YYYY-MM-DD)")
	dateTo := fs.String("date-to", "", "Last day of the report (YYYY-MM-DD)")
	tagFlag := fs.String("tag", "", "Extra leading column as name:value")
	configFile := fs.String("config", DefaultConfigFile, "YAML configuration file")
	outputDir := fs.String("output-dir", "", "Directory for the CSV report")
	logLevelStr := fs.String("loglevel", "info", "Logging level (none, error, warn, info, debug)")
	noEmail := fs.Bool("no-email", false, "Do not send the report")
	runs := fs.Int("runs", 0, "Print the last N recorded runs and exit")
	helpFlag := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			a.Usage(a.stderr)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *helpFlag {
		a.Usage(a.stderr)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments: %s", ErrUsage, strings.Join(fs.Args(), " "))
	}

	rng, err := config.ParseDateRange(*dateFrom, *dateTo)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	tag, err := config.ParseTag(*tagFlag)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *runs < 0 {
		return fmt.Errorf("%w: -runs cannot be negative", ErrUsage)
	}

	logLevel := logging.SetupLogging(*logLevelStr)

	cfg, err := a.loadConfig(*configFile, isFlagSet(fs, "config"))
	if err != nil {
		return err
	}

	// Override log level from config if it wasn't explicitly set by flag
	if !isFlagSet(fs, "loglevel") && cfg.Logging.Level != "" {
		logLevel = logging.SetupLogging(cfg.Logging.Level)
	}
	logging.SetLevel(logLevel)

	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}

	if *runs > 0 {
		return a.printRuns(ctx, cfg, *runs)
	}

	creds, err := a.credentialsLoader.Load()
	if err != nil {
		logging.Logf(logging.Error, "Missing credentials: %v", err)
		return err
	}

	runOpts := RunOptions{Range: rng, Tag: tag, NoEmail: *noEmail || !cfg.Email.IsEnabled()}
	runner, cleanup, err := a.pipelineFactory.New(cfg, creds, runOpts)
	if err != nil {
		return fmt.Errorf("failed to set up run: %w", err)
	}
	defer cleanup()

	summary, err := runner.Run(ctx)
	if err != nil {
		if summary.File != "" {
			logging.Logf(logging.Warning, "Partial report left at %s (%d rows)", summary.File, summary.Rows)
		}
		return err
	}
	logging.Logf(logging.Info, "Report %s: %d boosts, %d rows, emailed=%t", summary.File, summary.Boosts, summary.Rows, summary.EmailSent)
	return nil
}

// loadConfig reads the YAML file. A missing default file yields defaults;
// a missing file named with -config is ErrConfigNotFound.
func (a *AppRunner) loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if explicit {
				logging.Logf(logging.Error, "Configuration file '%s' not found.", path)
				return nil, ErrConfigNotFound
			}
			logging.Logf(logging.Debug, "No configuration file '%s', using defaults", path)
			return config.Default(), nil
		}
		return nil, fmt.Errorf("failed to stat config file '%s': %w", path, err)
	}

	cfg, err := a.configLoader.Load(path)
	if err != nil {
		logging.Logf(logging.Error, "Error loading configuration '%s': %v", path, err)
		return nil, err
	}
	return cfg, nil
}

func (a *AppRunner) printRuns(ctx context.Context, cfg *config.Config, limit int) error {
	if cfg.History.Path == "" {
		return fmt.Errorf("%w: -runs needs history.path in the configuration", ErrUsage)
	}
	store, err := a.historyOpener.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tFROM\tTO\tBOOSTS\tROWS\tEMAILED\tFILE\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Status, r.DateFrom, r.DateTo,
			r.Boosts, r.Rows, r.EmailSent, r.OutputFile, r.Error)
	}
	return tw.Flush()
}

// Helper to check if a specific flag was set
func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
