package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fleetops/hardpoint/internal/config"
	"github.com/fleetops/hardpoint/internal/dispatcher"
	"github.com/fleetops/hardpoint/internal/logging"
	intOtel "github.com/fleetops/hardpoint/internal/otel"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// build metadata, set via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const AppName = "hardpoint"

// file paths
var (
	LogFilePath string
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is handed to the zerolog based managers (influx, database, dispatcher)
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime = time.Now()

	closers []io.Closer
)

type options struct {
	configDir string
	remote    string
	overwrite bool
	version   bool
}

func parseFlags(args []string) (options, []string, error) {
	var o options
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.StringVarP(&o.configDir, "config", "c", ".", "directory containing "+config.ConfigFileName)
	fs.StringVar(&o.remote, "remote", "", "base URL of a running hardpoint server (env HARDPOINT_REMOTE)")
	fs.BoolVar(&o.overwrite, "overwrite", false, "confirm replacing the equipment of an occupied position")
	fs.BoolVarP(&o.version, "version", "v", false, "print version and exit")
	fs.String("log-level", "", "overrides logLevel")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args]\n\nCommands:\n%s\nFlags:\n", AppName, commandHelp())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	if err := viper.BindPFlag("logLevel", fs.Lookup("log-level")); err != nil {
		return o, nil, err
	}
	if o.remote == "" {
		o.remote = os.Getenv("HARDPOINT_REMOTE")
	}
	return o, fs.Args(), nil
}

// setupLogging starts on stderr, then moves to a session log file in logsDir
// with optional OTel and GELF sinks.
func setupLogging() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		Logger.Warn("Failed to create logs directory, logging to stderr", "error", err, "path", logsDir)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		_ = os.Rename(LogFilePath, LogFilePath+".old")
	}

	var out io.Writer = os.Stderr
	f, err := os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	} else {
		out = f
		closers = append(closers, f)
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      out,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []logging.Sink
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, c, err := logging.NewGELFHandler(gl.Address, &slog.HandlerOptions{
			Level: logging.ParseLevel(viper.GetString("logLevel")),
		})
		if err != nil {
			Logger.Error("Failed to set up GELF sink", "error", err)
		} else {
			extra = append(extra, logging.Sink{Name: "graylog", Handler: h})
			closers = append(closers, c)
		}
	}

	// Re-setup logging with file output and optional OTel
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(out, viper.GetString("logLevel"), otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", LogFilePath, "version", Version)

	lvl, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("logLevel")))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	ZLogger = zerolog.New(out).Level(lvl).With().Timestamp().Str("app", AppName).Logger()
}

func shutdownLogging() {
	if SlogManager != nil {
		SlogManager.ReportSinkFailures()
	}
	if OTelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
		cancel()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, rest, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if opts.version {
		fmt.Println(AppName, Version, BuildDate)
		return 0
	}
	if len(rest) == 0 {
		fmt.Fprintf(os.Stderr, "No command provided.\n\nCommands:\n%s", commandHelp())
		return 2
	}

	// load config
	if err := config.Load(opts.configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}
	setupLogging()
	defer shutdownLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(opts)
	if err != nil {
		Logger.Error("Startup failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer app.Close()

	cmd := strings.ToLower(rest[0])
	if !app.dispatcher.HasHandler(cmd) {
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n\nCommands:\n%s", rest[0], commandHelp())
		return 2
	}

	result, err := app.dispatcher.Dispatch(ctx, dispatcher.NewEvent(cmd, rest[1:]...))
	if err != nil {
		Logger.Error("Command failed", "command", cmd, "error", err)
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}
	if err := printResult(os.Stdout, result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
