// ABOUTME: Main entry point for the radio control daemon
// ABOUTME: Parses flags, loads config, runs the control socket and HTTP surface
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/harper/radiod/internal/application/config"
	"github.com/harper/radiod/internal/application/logging"
	"github.com/harper/radiod/internal/application/manager"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log := fatalLogger(os.Stderr)
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run() error {
	var (
		cfgPath     string
		listenAddr  string
		httpAddr    string
		logLevel    string
		engineKind  string
		showVersion bool
	)
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to config file")
	flag.StringVar(&listenAddr, "listen", "", "control socket <host:port>")
	flag.StringVar(&httpAddr, "http", "", "enable HTTP surface on <host:port>")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&engineKind, "engine", "", "media engine (mpd, null)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("radiod", version)
		return nil
	}

	cfg, err := loadConfig(cfgPath, flag.CommandLine.Changed("config"))
	if err != nil {
		return err
	}

	if listenAddr != "" {
		host, port, err := splitAddr(listenAddr)
		if err != nil {
			return fmt.Errorf("--listen: %w", err)
		}
		cfg.Listen.Host, cfg.Listen.Port = host, port
	}
	if httpAddr != "" {
		host, port, err := splitAddr(httpAddr)
		if err != nil {
			return fmt.Errorf("--http: %w", err)
		}
		cfg.HTTP.Enabled, cfg.HTTP.Host, cfg.HTTP.Port = true, host, port
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if engineKind != "" {
		cfg.Engine.Kind = engineKind
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	log, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := manager.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("listen", cfg.Listen.Addr()).
		Str("engine", cfg.Engine.Kind).
		Msg("starting")

	runErr := mgr.Run(ctx)
	log.Info().Msg("shutting down...")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(sctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if runErr != nil {
		return runErr
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// fatalLogger reports errors raised before the configured logger exists.
func fatalLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.DateTime}).
		With().Timestamp().Logger()
}

// loadConfig reads path, falling back to defaults when the default path is
// absent.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad port %q", portStr)
	}
	return host, port, nil
}
