package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"revstats/internal/config"
	"revstats/internal/history"
	"revstats/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// mockConfigLoader allows controlling config loading results.
type mockConfigLoader struct {
	mock.Mock
}

func (m *mockConfigLoader) Load(filename string) (*config.Config, error) {
	args := m.Called(filename)
	cfg, _ := args.Get(0).(*config.Config)
	return cfg, args.Error(1)
}

type mockCredentialsLoader struct {
	mock.Mock
}

func (m *mockCredentialsLoader) Load() (*config.Credentials, error) {
	args := m.Called()
	creds, _ := args.Get(0).(*config.Credentials)
	return creds, args.Error(1)
}

// mockPipelineRunner allows asserting that Run was called.
type mockPipelineRunner struct {
	mock.Mock
}

func (m *mockPipelineRunner) Run(ctx context.Context) (pipeline.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(pipeline.Summary), args.Error(1)
}

// mockPipelineFactory returns the mockPipelineRunner.
type mockPipelineFactory struct {
	mock.Mock
}

func (m *mockPipelineFactory) New(cfg *config.Config, creds *config.Credentials, opts RunOptions) (pipelineRunner, func(), error) {
	args := m.Called(cfg, creds, opts)
	runner, _ := args.Get(0).(pipelineRunner)
	cleanup, _ := args.Get(1).(func())
	return runner, cleanup, args.Error(2)
}

// Helper to create a temporary config file
func createTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test_config.yaml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func testCreds() *config.Credentials {
	return &config.Credentials{
		ClientID:       "id",
		ClientSecret:   "secret",
		SendGridAPIKey: "SG.key",
		FromEmail:      "from@example.com",
		ToEmail:        "to@example.com",
	}
}

// --- Tests ---

func TestAppRunner_Run_Help(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"Help Flag Long", []string{"--help"}},
		{"Help Flag Short", []string{"-help"}},
		{"Help Flag With Others", []string{"-tag", "month:june", "-help"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stderr bytes.Buffer
			factory := new(mockPipelineFactory)
			runner := NewAppRunnerWithOpts(AppRunnerOpts{PipelineFactory: factory, Stderr: &stderr})

			err := runner.Run(context.Background(), tc.args)
			assert.NoError(t, err, "Running with help should not produce an error")
			assert.Contains(t, stderr.String(), "Usage:")
			assert.Contains(t, stderr.String(), "-date-from string")
			factory.AssertNotCalled(t, "New", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAppRunner_Run_FlagErrors(t *testing.T) {
	testCases := []struct {
		name          string
		args          []string
		expectInvalid bool // also wraps config.ErrInvalidOption
	}{
		{"Invalid Flag", []string{"--invalid-flag"}, false},
		{"Flag Needs Argument", []string{"-config"}, false},
		{"Positional Argument", []string{"extra"}, false},
		{"Bad Date From", []string{"-date-from", "2024-13-01"}, true},
		{"Bad Date To", []string{"-date-from", "2024-01-01", "-date-to", "01/31/2024"}, true},
		{"Date To Without From", []string{"-date-to", "2024-01-31"}, true},
		{"Bad Tag", []string{"-tag", "month"}, true},
		{"Negative Runs", []string{"-runs", "-1"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			factory := new(mockPipelineFactory)
			runner := NewAppRunnerWithOpts(AppRunnerOpts{PipelineFactory: factory})

			err := runner.Run(context.Background(), tc.args)
			require.Error(t, err, "Expected an error for invalid flags")
			assert.ErrorIs(t, err, ErrUsage, "Expected specific usage error")
			if tc.expectInvalid {
				assert.ErrorIs(t, err, config.ErrInvalidOption)
			}
			factory.AssertNotCalled(t, "New", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAppRunner_Run_ConfigErrors(t *testing.T) {
	mockLoader := new(mockConfigLoader)
	runner := NewAppRunnerWithOpts(AppRunnerOpts{
		ConfigLoader: mockLoader,
	})

	t.Run("Config Not Found", func(t *testing.T) {
		err := runner.Run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "nonexistent.yaml")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigNotFound)
		mockLoader.AssertNotCalled(t, "Load", mock.Anything)
	})

	t.Run("Config Load Error", func(t *testing.T) {
		dummyFile := createTempYAML(t, "invalid yaml:")
		loadErr := errors.New("mock yaml parse error")
		mockLoader.On("Load", dummyFile).Return(nil, loadErr).Once()

		err := runner.Run(context.Background(), []string{"-config", dummyFile})
		require.Error(t, err)
		assert.Contains(t, err.Error(), loadErr.Error())
		mockLoader.AssertExpectations(t)
	})
}

func TestAppRunner_Run_DefaultConfigOptional(t *testing.T) {
	chdir(t, t.TempDir())

	mockLoader := new(mockConfigLoader)
	creds := new(mockCredentialsLoader)
	factory := new(mockPipelineFactory)
	prunner := new(mockPipelineRunner)
	runner := NewAppRunnerWithOpts(AppRunnerOpts{
		ConfigLoader:      mockLoader,
		CredentialsLoader: creds,
		PipelineFactory:   factory,
	})

	c := testCreds()
	creds.On("Load").Return(c, nil).Once()
	factory.On("New", config.Default(), c, RunOptions{}).Return(prunner, func() {}, nil).Once()
	prunner.On("Run", mock.Anything).Return(pipeline.Summary{File: "r.csv"}, nil).Once()

	err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	mockLoader.AssertNotCalled(t, "Load", mock.Anything)
	creds.AssertExpectations(t)
	factory.AssertExpectations(t)
	prunner.AssertExpectations(t)
}

func TestAppRunner_Run_MissingCredentials(t *testing.T) {
	chdir(t, t.TempDir())

	creds := new(mockCredentialsLoader)
	factory := new(mockPipelineFactory)
	runner := NewAppRunnerWithOpts(AppRunnerOpts{CredentialsLoader: creds, PipelineFactory: factory})

	credErr := errors.Join(config.ErrMissingCredentials, errors.New("REVCONTENT_CLIENT_ID"))
	creds.On("Load").Return(nil, credErr).Once()

	err := runner.Run(context.Background(), []string{"-loglevel", "none"})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	factory.AssertNotCalled(t, "New", mock.Anything, mock.Anything, mock.Anything)
}

func TestAppRunner_Run_Dispatch(t *testing.T) {
	dummyConfigFile := createTempYAML(t, "report:\n  output_dir: out\n")
	disabled := false

	baseConfig := func() *config.Config {
		cfg := config.Default()
		cfg.Report.OutputDir = "out"
		return cfg
	}

	testCases := []struct {
		name              string
		args              []string
		loaded            func() *config.Config
		expectConfig      func() *config.Config
		expectOpts        RunOptions
		runErr            error
		factoryErr        error
		expectErrContains string
	}{
		{
			name:         "Default Run",
			args:         []string{"-config", dummyConfigFile},
			loaded:       baseConfig,
			expectConfig: baseConfig,
			expectOpts:   RunOptions{},
		},
		{
			name:   "Range Tag And Output Dir",
			args:   []string{"-config", dummyConfigFile, "-date-from", "2024-01-01", "-date-to", "2024-01-31", "-tag", "month:january", "-output-dir", "/tmp/reports"},
			loaded: baseConfig,
			expectConfig: func() *config.Config {
				cfg := baseConfig()
				cfg.Report.OutputDir = "/tmp/reports"
				return cfg
			},
			expectOpts: RunOptions{
				Range: config.DateRange{From: "2024-01-01", To: "2024-01-31"},
				Tag:   config.Tag{Name: "month", Value: "january"},
			},
		},
		{
			name:         "No Email Flag",
			args:         []string{"-config", dummyConfigFile, "-no-email"},
			loaded:       baseConfig,
			expectConfig: baseConfig,
			expectOpts:   RunOptions{NoEmail: true},
		},
		{
			name: "Email Disabled In Config",
			args: []string{"-config", dummyConfigFile},
			loaded: func() *config.Config {
				cfg := baseConfig()
				cfg.Email.Enabled = &disabled
				return cfg
			},
			expectConfig: func() *config.Config {
				cfg := baseConfig()
				cfg.Email.Enabled = &disabled
				return cfg
			},
			expectOpts: RunOptions{NoEmail: true},
		},
		{
			name:              "Run Fails",
			args:              []string{"-config", dummyConfigFile},
			loaded:            baseConfig,
			expectConfig:      baseConfig,
			runErr:            errors.New("fetch stats: boost 7: exhausted"),
			expectErrContains: "boost 7",
		},
		{
			name:              "Factory Fails",
			args:              []string{"-config", dummyConfigFile},
			loaded:            baseConfig,
			expectConfig:      baseConfig,
			factoryErr:        errors.New("no transport"),
			expectErrContains: "failed to set up run: no transport",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockLoader := new(mockConfigLoader)
			creds := new(mockCredentialsLoader)
			factory := new(mockPipelineFactory)
			prunner := new(mockPipelineRunner)
			runner := NewAppRunnerWithOpts(AppRunnerOpts{
				ConfigLoader:      mockLoader,
				CredentialsLoader: creds,
				PipelineFactory:   factory,
			})

			c := testCreds()
			cleaned := false
			mockLoader.On("Load", dummyConfigFile).Return(tc.loaded(), nil).Once()
			creds.On("Load").Return(c, nil).Once()
			if tc.factoryErr != nil {
				factory.On("New", tc.expectConfig(), c, tc.expectOpts).Return(nil, nil, tc.factoryErr).Once()
			} else {
				factory.On("New", tc.expectConfig(), c, tc.expectOpts).Return(prunner, func() { cleaned = true }, nil).Once()
				prunner.On("Run", mock.Anything).Return(pipeline.Summary{File: "out/r.csv", Rows: 2}, tc.runErr).Once()
			}

			err := runner.Run(context.Background(), tc.args)

			if tc.expectErrContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErrContains)
			} else {
				assert.NoError(t, err)
			}
			if tc.factoryErr == nil {
				assert.True(t, cleaned, "cleanup must run after the pipeline")
			}
			mockLoader.AssertExpectations(t)
			creds.AssertExpectations(t)
			factory.AssertExpectations(t)
			prunner.AssertExpectations(t)
		})
	}
}

func TestAppRunner_Run_ContextPassedThrough(t *testing.T) {
	chdir(t, t.TempDir())

	creds := new(mockCredentialsLoader)
	factory := new(mockPipelineFactory)
	prunner := new(mockPipelineRunner)
	runner := NewAppRunnerWithOpts(AppRunnerOpts{CredentialsLoader: creds, PipelineFactory: factory})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creds.On("Load").Return(testCreds(), nil).Once()
	factory.On("New", mock.Anything, mock.Anything, mock.Anything).Return(prunner, func() {}, nil).Once()
	prunner.On("Run", ctx).Return(pipeline.Summary{}, context.Canceled).Once()

	err := runner.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	prunner.AssertExpectations(t)
}

func TestAppRunner_Run_PrintRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	run := &history.Run{ID: "r1", StartedAt: time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC), DateFrom: "2024-01-31"}
	require.NoError(t, store.Start(ctx, run))
	run.Status, run.Boosts, run.Rows, run.OutputFile = history.StatusSucceeded, 4, 12, "widget_stats.csv"
	require.NoError(t, store.Finish(ctx, run))
	require.NoError(t, store.Close())

	cfg := config.Default()
	cfg.History.Path = dbPath
	cfgFile := createTempYAML(t, "history:\n  path: x\n")

	mockLoader := new(mockConfigLoader)
	creds := new(mockCredentialsLoader)
	factory := new(mockPipelineFactory)
	var stdout bytes.Buffer
	runner := NewAppRunnerWithOpts(AppRunnerOpts{
		ConfigLoader:      mockLoader,
		CredentialsLoader: creds,
		PipelineFactory:   factory,
		Stdout:            &stdout,
	})
	mockLoader.On("Load", cfgFile).Return(cfg, nil).Once()

	err = runner.Run(ctx, []string{"-config", cfgFile, "-runs", "5"})
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "2024-01-31")
	assert.Contains(t, out, "widget_stats.csv")
	creds.AssertNotCalled(t, "Load")
	factory.AssertNotCalled(t, "New", mock.Anything, mock.Anything, mock.Anything)
}

func TestAppRunner_Run_PrintRunsWithoutHistory(t *testing.T) {
	chdir(t, t.TempDir())

	runner := NewAppRunnerWithOpts(AppRunnerOpts{})
	err := runner.Run(context.Background(), []string{"-runs", "3"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestDefaultPipelineFactory_New(t *testing.T) {
	cfg := config.Default()
	cfg.Report.OutputDir = t.TempDir()
	cfg.History.Path = filepath.Join(t.TempDir(), "runs.db")

	runner, cleanup, err := (&defaultPipelineFactory{}).New(cfg, testCreds(), RunOptions{NoEmail: true})
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	defer cleanup()
	assert.IsType(t, &pipeline.Pipeline{}, runner)

	_, err = os.Stat(cfg.History.Path)
	assert.NoError(t, err, "history ledger is opened when configured")
}
