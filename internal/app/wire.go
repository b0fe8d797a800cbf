package app

import (
	"revstats/internal/auth"
	"revstats/internal/config"
	"revstats/internal/history"
	"revstats/internal/httpclient"
	"revstats/internal/logging"
	"revstats/internal/metrics"
	"revstats/internal/notify"
	"revstats/internal/pipeline"
	"revstats/internal/revcontent"
	"revstats/internal/util"
)

// defaultPipelineFactory wires the production collaborators.
type defaultPipelineFactory struct{}

func (f *defaultPipelineFactory) New(cfg *config.Config, creds *config.Credentials, opts RunOptions) (pipelineRunner, func(), error) {
	httpClient := httpclient.NewClient(&cfg.API)
	logging.Logf(logging.Debug, "Using client id %s against %s", util.MaskSecret(creds.ClientID), cfg.API.BaseURL)

	recorder := metrics.New()
	api := revcontent.NewClient(revcontent.Options{
		BaseURL:           cfg.API.BaseURL,
		HTTPClient:        httpClient,
		Auth:              auth.NewClientCredentials(cfg.API.BaseURL, creds.ClientID, creds.ClientSecret, httpClient),
		Retry:             cfg.API.Retry,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		BoostsPageSize:    cfg.API.BoostsPageSize,
		MaxPages:          cfg.API.MaxPages,
		Metrics:           recorder,
	})

	deps := pipeline.Deps{
		API:        api,
		Metrics:    recorder,
		PushClient: httpClient,
	}
	if !opts.NoEmail {
		sender := notify.NewSendGridSender(creds.SendGridAPIKey, cfg.Email.Host, httpClient)
		deps.Notifier = notify.NewNotifier(sender, cfg.Email, *creds)
	}

	cleanup := func() {}
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.Logf(logging.Warning, "Run history disabled: %v", err)
		} else {
			deps.History = store
			cleanup = func() {
				if err := store.Close(); err != nil {
					logging.Logf(logging.Warning, "Closing run history: %v", err)
				}
			}
		}
	}

	p := pipeline.New(deps, pipeline.Options{
		Range:          opts.Range,
		Tag:            opts.Tag,
		OutputDir:      cfg.Report.OutputDir,
		DriftPolicy:    cfg.Report.SchemaDrift,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		MetricsJob:     cfg.Metrics.Job,
	})
	return p, cleanup, nil
}
