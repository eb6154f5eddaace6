package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/cisclient/internal/cis"
	"github.com/jo-hoe/cisclient/internal/common"
	"github.com/jo-hoe/cisclient/internal/config"
	"github.com/jo-hoe/cisclient/internal/console"
	"github.com/jo-hoe/cisclient/internal/coordinator"
	"github.com/jo-hoe/cisclient/internal/jobs"
	"github.com/jo-hoe/cisclient/internal/logger"
	"github.com/jo-hoe/cisclient/internal/processor"
	"github.com/jo-hoe/cisclient/internal/workspace"
)

type flags struct {
	configPath string
	layout     workspace.Layout
	logLevel   string
	logFormat  string
	assumeYes  bool
}

// app holds what the fatal path needs once the command has returned.
type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	sleep  func(time.Duration)

	runLog       *logger.RunLog
	closeSeconds int
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		fs:           afero.NewOsFs(),
		stdout:       stdout,
		stderr:       stderr,
		sleep:        time.Sleep,
		closeSeconds: common.DefaultErrorCloseSeconds,
	}
}

func newRootCommand(a *app) *cobra.Command {
	f := flags{layout: workspace.DefaultLayout()}
	cmd := &cobra.Command{
		Use:   "cisclient",
		Short: "Submit local files to CIS and collect the results",
		Long: heredoc.Doc(`
			cisclient submits every file in the input directory to the first
			repository of the CIS environment, polls each job until it completes,
			downloads the result into Output/<jobId> and releases the job.

			With separateJobs enabled and more than one input file, every file is
			submitted as its own job and all jobs run concurrently.
		`),
		Example: heredoc.Doc(`
			$ cisclient
			$ cisclient --config ./appsettings.yaml --yes
			$ CIS_CONFIG=/etc/cis/appsettings.json cisclient --log-level debug
		`),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "config file path (default $"+common.ConfigEnvVar+" or "+common.ConfigFileName+")")
	fl.StringVar(&f.layout.InputDir, "input", f.layout.InputDir, "directory holding the files to submit")
	fl.StringVar(&f.layout.OutputDir, "output", f.layout.OutputDir, "root directory for downloaded results")
	fl.StringVar(&f.layout.JobLogsDir, "job-logs", f.layout.JobLogsDir, "directory for per-job logs")
	fl.StringVar(&f.layout.RunLogPath, "run-log", f.layout.RunLogPath, "file recording fatal errors")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	fl.StringVar(&f.logFormat, "log-format", "console", "log format: console|json")
	fl.BoolVarP(&f.assumeYes, "yes", "y", false, "do not wait for enter before starting and closing")
	return cmd
}

func (a *app) run(ctx context.Context, f flags) error {
	a.runLog = logger.NewRunLog(a.fs, f.layout.RunLogPath)
	if err := a.runLog.Reset(); err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: f.logLevel, Format: f.logFormat, Writer: a.stdout})
	prompt := console.NewPrompter(f.assumeYes)

	cfgPath := config.ResolvePath(f.configPath)
	cfg, created, err := config.LoadOrCreate(a.fs, cfgPath)
	if err != nil {
		return err
	}
	a.closeSeconds = cfg.ErrorCloseSeconds
	if created {
		log.Warn().Str("path", cfgPath).Msg("No config file found; wrote defaults. Edit it before running against a real server.")
	}
	console.RenderSettings(a.stdout, cfgPath, cfg)
	if err := prompt.Pause("Press enter to start..."); err != nil {
		return err
	}

	ws := workspace.New(a.fs, f.layout, log)
	if err := ws.Prepare(); err != nil {
		return err
	}
	files, err := ws.InputFiles()
	if err != nil {
		return err
	}

	client, err := cis.NewFromConfig(cfg, a.fs)
	if err != nil {
		return err
	}
	defer client.Close()

	store := jobs.NewMemoryStore()
	sink := logger.NewJobSink(a.fs, f.layout.JobLogsDir, a.stdout, logger.ParseLevel(f.logLevel))
	worker := processor.New(log, client, store, sink, ws, processor.Options{
		PollInterval: cfg.PollInterval(),
		MaxPoll:      cfg.MaxPollDuration(),
	})
	coord := coordinator.New(log, client, worker, jobs.NewGroup(log, 0), store, cfg.SeparateJobs)

	report, err := coord.Run(ctx, files)
	console.RenderReport(a.stdout, report)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, console.Summary(report))
	return prompt.Pause("Press enter to close...")
}

// fatal reports err on the console and in the run log, then counts down.
func (a *app) fatal(err error) {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	if a.runLog == nil {
		a.runLog = logger.NewRunLog(a.fs, common.RunLogFileName)
	}
	if lerr := a.runLog.Append(err.Error()); lerr != nil {
		fmt.Fprintf(a.stderr, "Error: write run log: %v\n", lerr)
	}
	console.Countdown(a.stdout, a.closeSeconds, a.sleep)
}
