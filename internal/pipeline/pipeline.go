// Package pipeline runs one report job: login, list boosts, fetch stats,
// write the CSV, email it, then record the run.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"revstats/internal/config"
	"revstats/internal/history"
	"revstats/internal/logging"
	"revstats/internal/metrics"
	"revstats/internal/notify"
	"revstats/internal/report"
	"revstats/internal/revcontent"

	"github.com/google/uuid"
)

// API is the subset of the Revcontent client the job needs.
type API interface {
	Login(ctx context.Context) error
	ListBoosts(ctx context.Context) ([]revcontent.Boost, error)
	GetWidgetsStats(ctx context.Context, boostID, from, to string) ([]revcontent.WidgetStat, error)
}

// Notifier delivers the finished report.
type Notifier interface {
	Notify(ctx context.Context, path string, info notify.RunInfo) error
}

// HistoryStore records run start and finish.
type HistoryStore interface {
	Start(ctx context.Context, run *history.Run) error
	Finish(ctx context.Context, run *history.Run) error
}

// Options are the per-run settings.
type Options struct {
	Range       config.DateRange
	Tag         config.Tag
	OutputDir   string
	DriftPolicy string

	PushgatewayURL string
	MetricsJob     string

	RunID string           // empty means a new UUID
	Now   func() time.Time // defaults to time.Now
}

// Deps are the collaborators of a run. Notifier, History and Metrics may be
// nil; a nil Notifier means the report is written but not emailed.
type Deps struct {
	API        API
	Notifier   Notifier
	History    HistoryStore
	Metrics    *metrics.Recorder
	PushClient *http.Client
}

// Summary describes a finished (or failed) run.
type Summary struct {
	RunID     string
	File      string
	DateFrom  string
	DateTo    string
	Boosts    int
	Rows      int
	EmailSent bool
}

// Pipeline is one report run.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run executes the job. The returned Summary is filled as far as the run
// got, so File is set whenever the report file was created.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	logging.WithFields("run_id", p.opts.RunID)
	defer logging.WithFields()

	started := p.opts.Now()
	from, to := p.opts.Range.Resolve(started)
	summary := Summary{RunID: p.opts.RunID, DateFrom: from, DateTo: to}
	logging.Logf(logging.Info, "Starting report run (date_from=%s date_to=%s)", from, to)

	record := &history.Run{
		ID:        p.opts.RunID,
		StartedAt: started,
		DateFrom:  from,
		DateTo:    to,
		TagName:   p.opts.Tag.Name,
		TagValue:  p.opts.Tag.Value,
	}
	if p.deps.History != nil {
		if err := p.deps.History.Start(ctx, record); err != nil {
			logging.Logf(logging.Warning, "Could not record run start: %v", err)
			record = nil
		}
	}

	err := p.run(ctx, started, &summary)
	finished := p.opts.Now()
	if err != nil {
		logging.Logf(logging.Error, "Report run failed: %v", err)
	} else {
		logging.Logf(logging.Info, "Report run finished: %d boosts, %d rows, file %s", summary.Boosts, summary.Rows, summary.File)
	}

	p.finish(ctx, record, summary, started, finished, err)
	return summary, err
}

func (p *Pipeline) run(ctx context.Context, started time.Time, summary *Summary) (err error) {
	if err := p.deps.API.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	boosts, err := p.deps.API.ListBoosts(ctx)
	if err != nil {
		return fmt.Errorf("list boosts: %w", err)
	}

	sink, err := report.NewCSVSink(p.opts.OutputDir, report.FileName(started, p.opts.Range))
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	summary.File = sink.Path()
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close report: %w", closeErr)
		}
	}()

	builder := report.NewBuilder(p.opts.Tag, p.opts.DriftPolicy)
	for _, boost := range boosts {
		logging.Logf(logging.Info, "Processing boost %s (%s), utm_source=%q", boost.ID, boost.Name, report.UTMSource(boost.UTMCodes))
		stats, err := p.deps.API.GetWidgetsStats(ctx, boost.ID, summary.DateFrom, summary.DateTo)
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}
		batch, err := builder.Add(boost, stats)
		if err != nil {
			return fmt.Errorf("build rows: %w", err)
		}
		if err := sink.WriteBatch(batch); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		summary.Boosts++
		summary.Rows += len(batch.Rows)
		p.deps.Metrics.AddBoost(len(batch.Rows))
	}

	// The attachment must be read from a closed, fully flushed file.
	if err := sink.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	if p.deps.Notifier == nil {
		logging.Logf(logging.Info, "Email disabled, report left at %s", sink.Path())
		return nil
	}
	info := notify.RunInfo{
		DateFrom: summary.DateFrom,
		DateTo:   summary.DateTo,
		Rows:     summary.Rows,
		Boosts:   summary.Boosts,
		Tag:      p.opts.Tag,
	}
	if err := p.deps.Notifier.Notify(ctx, sink.Path(), info); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	summary.EmailSent = true
	return nil
}

// finish records history and pushes metrics. Failures here are logged only.
func (p *Pipeline) finish(ctx context.Context, record *history.Run, summary Summary, started, finished time.Time, runErr error) {
	// Record even when the run itself was cancelled.
	ctx = context.WithoutCancel(ctx)

	if record != nil && p.deps.History != nil {
		record.FinishedAt = finished
		record.OutputFile = summary.File
		record.Boosts = summary.Boosts
		record.Rows = summary.Rows
		record.EmailSent = summary.EmailSent
		record.Status = history.StatusSucceeded
		if runErr != nil {
			record.Status = history.StatusFailed
			record.Error = runErr.Error()
		}
		if err := p.deps.History.Finish(ctx, record); err != nil {
			logging.Logf(logging.Warning, "Could not record run finish: %v", err)
		}
	}

	p.deps.Metrics.ObserveRun(started, finished, runErr == nil)
	if p.opts.PushgatewayURL != "" {
		if err := p.deps.Metrics.Push(ctx, p.opts.PushgatewayURL, p.opts.MetricsJob, p.deps.PushClient); err != nil {
			logging.Logf(logging.Warning, "Could not push metrics: %v", err)
		}
	}
}
