package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/prupdater/internal/autoupdate"
	"github.com/simplesurance/prupdater/internal/cfg"
	"github.com/simplesurance/prupdater/internal/githubclt"
	"github.com/simplesurance/prupdater/internal/logfields"
	"github.com/simplesurance/prupdater/internal/prfilter"
)

const appName = "prupdater"

const metricsPushTimeout = 30 * time.Second

var logger *zap.Logger

// action is set before the configuration is parsed, failures are reported
// to the GitHub Actions runner through it.
var action *githubactions.Action

// Version is set via a ldflag on compilation
var Version = "unknown"

// signalFailure emits an error workflow command, it makes the GitHub
// Actions step fail with msg and err as annotation.
func signalFailure(a *githubactions.Action, msg string, err error) {
	if a == nil {
		return
	}

	a.Errorf("%s: %s", msg, err)
}

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	signalFailure(action, msg, err)
	os.Exit(1)
}

// fatal is used instead of logger.Fatal() after the logger was initialized,
// it also signals the failure and runs the goodbye handlers.
func fatal(msg string, err error) {
	logger.Error(msg, zap.Error(err))
	signalFailure(action, msg, err)

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	goodbye.Exit(ctx, 1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

type arguments struct {
	Verbose        *bool
	ConfigFile     *string
	ShowVersion    *bool
	GithubToken    *string
	Repository     *string
	BaseBranch     *string
	BotLogin       *string
	RebaseLabel    *string
	FilterQuery    *string
	DryRun         *bool
	PushgatewayURL *string
	LogFormat      *string
	LogLevel       *string
}

var args arguments

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			"",
			"path to an optional prupdater configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		GithubToken: pflag.String(
			"github-token",
			"",
			"GitHub API token, when running as GitHub Action it is read from the github-token input",
		),
		Repository: pflag.String(
			"repository",
			"",
			"repository in the format OWNER/REPOSITORY, when running as GitHub Action it is read from GITHUB_REPOSITORY",
		),
		BaseBranch: pflag.String(
			"base-branch",
			cfg.DefBaseBranch,
			"base branch of the pull requests that are updated",
		),
		BotLogin: pflag.String(
			"renovate-login",
			cfg.DefBotLogin,
			"login of the dependency bot, its pull requests are rebased by adding the rebase label",
		),
		RebaseLabel: pflag.String(
			"rebase-label",
			cfg.DefRebaseLabel,
			"label that makes the dependency bot rebase a pull request",
		),
		FilterQuery: pflag.String(
			"filter-query",
			"",
			"jq query evaluated for every pull request, only pull requests for which it returns true are considered",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"do not change anything on GitHub, only log the actions",
		),
		PushgatewayURL: pflag.String(
			"pushgateway-url",
			"",
			"URL of a Prometheus Pushgateway, when set metrics of the run are pushed to it",
		),
		LogFormat: pflag.String(
			"log-format",
			cfg.DefLogFormat,
			"log format, supported values: console, json, logfmt",
		),
		LogLevel: pflag.String(
			"log-level",
			cfg.DefLogLevel,
			"log level",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nUpdate the oldest auto-merge pull request with its base branch or request a rebase from renovate.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustLoadCfgFile() *cfg.Config {
	if *args.ConfigFile == "" {
		return cfg.Default()
	}

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	return config
}

func applyFlags(config *cfg.Config) error {
	changed := pflag.CommandLine.Changed

	if changed("github-token") {
		config.GithubAPIToken = *args.GithubToken
	}

	if changed("repository") {
		if err := config.SetRepository(*args.Repository); err != nil {
			return err
		}
	}

	if changed("base-branch") {
		config.BaseBranch = *args.BaseBranch
	}

	if changed("renovate-login") {
		config.BotLogin = *args.BotLogin
	}

	if changed("rebase-label") {
		config.RebaseLabel = *args.RebaseLabel
	}

	if changed("filter-query") {
		config.FilterQuery = *args.FilterQuery
	}

	if changed("dry-run") {
		config.DryRun = *args.DryRun
	}

	if changed("pushgateway-url") {
		config.PushgatewayURL = *args.PushgatewayURL
	}

	if changed("log-format") {
		config.LogFormat = *args.LogFormat
	}

	if changed("log-level") {
		config.LogLevel = *args.LogLevel
	}

	return nil
}

// mustParseCfg builds the configuration from, in increasing precedence, the
// configuration file, the GitHub Actions environment and the command line
// flags.
func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	config := mustLoadCfgFile()

	err := config.ApplyActionEnv(action)
	exitOnErr("could not read github actions environment", err)

	err = applyFlags(config)
	exitOnErr("invalid command line parameters", err)

	err = config.Validate()
	exitOnErr("invalid configuration", err)

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		err := (&logLevel).Set(config.LogLevel)
		exitOnErr(fmt.Sprintf("can not set log level to %q", config.LogLevel), err)
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		exitOnErr("invalid configuration", fmt.Errorf("unsupported log-format: %q", config.LogFormat))
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func newGithubClient(config *cfg.Config) autoupdate.GithubClient {
	var clt autoupdate.GithubClient = githubclt.New(config.GithubAPIToken)

	if config.DryRun {
		clt = autoupdate.NewDryGithubClient(clt, logger)
		logger.Info("dry run enabled, changes on github are simulated",
			logfields.Event("dry_run_enabled"))
	}

	return clt
}

func mustNewUpdater(config *cfg.Config, metrics *autoupdate.Metrics) *autoupdate.Updater {
	baseBranch, err := autoupdate.NewBaseBranch(config.RepositoryOwner, config.Repository, config.BaseBranch)
	if err != nil {
		fatal("invalid base branch configuration", err)
	}

	opts := []autoupdate.Option{
		autoupdate.WithBotLogin(config.BotLogin),
		autoupdate.WithRebaseLabel(config.RebaseLabel),
		autoupdate.WithMetrics(metrics),
	}

	if config.FilterQuery != "" {
		filter, err := prfilter.New(config.FilterQuery)
		if err != nil {
			fatal("invalid filter query", err)
		}

		opts = append(opts, autoupdate.WithCandidateFilter(filter))
	}

	return autoupdate.NewUpdater(newGithubClient(config), baseBranch, opts...)
}

func pushMetrics(metrics *autoupdate.Metrics, url string) {
	ctx, cancelFn := context.WithTimeout(context.Background(), metricsPushTimeout)
	defer cancelFn()

	if err := metrics.Push(ctx, url); err != nil {
		logger.Warn(
			"pushing metrics failed",
			logfields.Event("metrics_push_failed"),
			zap.String("pushgateway_url", url),
			zap.Error(err),
		)

		return
	}

	logger.Debug(
		"metrics pushed",
		logfields.Event("metrics_pushed"),
		zap.String("pushgateway_url", url),
	)
}

func main() {
	defer panicHandler()

	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0)
	}

	action = githubactions.New()

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Info(
		"loaded cfg",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		logfields.RepositoryOwner(config.RepositoryOwner),
		logfields.Repository(config.Repository),
		logfields.BaseBranch(config.BaseBranch),
		zap.String("renovate_login", config.BotLogin),
		zap.String("rebase_label", config.RebaseLabel),
		zap.String("filter_query", config.FilterQuery),
		zap.Bool("dry_run", config.DryRun),
		zap.String("pushgateway_url", config.PushgatewayURL),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		// sig is nil when goodbye.Exit() was called
		if sig != nil {
			logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
		}
		cancelFn()
	})

	metrics := autoupdate.NewMetrics()
	updater := mustNewUpdater(config, metrics)

	_, err := updater.Run(ctx)

	if config.PushgatewayURL != "" {
		pushMetrics(metrics, config.PushgatewayURL)
	}

	if err != nil {
		action.Errorf("%s", err.Error())
		goodbye.Exit(context.Background(), 1)
	}

	goodbye.Exit(context.Background(), 0)
}
