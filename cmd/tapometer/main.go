package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/tapometer/internal/config"
	"codeberg.org/mutker/tapometer/internal/device"
	"codeberg.org/mutker/tapometer/internal/journal"
	"codeberg.org/mutker/tapometer/internal/logger"
	"codeberg.org/mutker/tapometer/internal/pid"
	"codeberg.org/mutker/tapometer/internal/session"
	"codeberg.org/mutker/tapometer/internal/supervisor"
)

const (
	checkTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Error().Err(err).Msg("Failed to acquire PID file")
		return 1
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	port := device.NewTapoPort()

	if cfg.Check {
		return runCheck(cfg, port)
	}

	return runMeasurement(cfg, port)
}

// runCheck opens a connection with the usual bounded timeout, reports
// reachability and exits without taking any samples.
func runCheck(cfg *config.Config, port device.Port) int {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	conn, err := port.Connect(ctx, cfg.Address, device.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Error().Err(err).Str("address", cfg.Address).Msg("Device is unreachable")
		return 1
	}
	conn.Close()

	logger.Info().Str("address", cfg.Address).Msg("Device is reachable")

	return 0
}

func runMeasurement(cfg *config.Config, port device.Port) int {
	recorder, err := journal.NewService(journal.Config{
		DBPath:  cfg.JournalDB,
		Enabled: cfg.Journal,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize session journal")
		return 1
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close session journal")
		}
	}()

	sup := supervisor.New(port)
	terminal := make(chan session.Result, 1)
	startedAt := time.Now()

	sup.OnProgress(func(_ supervisor.Handle, update session.ProgressUpdate) {
		logger.Info().
			Int("percent", int(update.Percent)).
			Int("remaining_s", update.RemainingSeconds).
			Msg(update.Line)
	})
	sup.OnTerminal(func(handle supervisor.Handle, result session.Result) {
		recordResult(recorder, cfg, handle, result, startedAt)
		terminal <- result
	})

	handle, err := sup.Start(session.Config{
		Address: cfg.Address,
		Credentials: device.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Interval:   cfg.Interval,
		Duration:   cfg.Duration,
		OutputDir:  cfg.OutputDir,
		OutputName: cfg.OutputName,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start measurement session")
		return 1
	}

	logger.Info().
		Str("session_id", handle.ID.String()).
		Str("address", cfg.Address).
		Dur("interval", cfg.Interval).
		Dur("duration", cfg.Duration).
		Msg("Measurement started")

	go handleSignals(sup)

	result := <-terminal

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Supervisor shutdown failed")
	}

	switch result.State {
	case session.Completed:
		logger.Info().
			Str("path", result.OutputPath).
			Int("samples", result.Samples).
			Msg("Data saved")
		return 0
	case session.Cancelled:
		logger.Info().Msg("Measurement cancelled, no data written")
		return 0
	default:
		logger.Error().Err(result.Err).Msg("Measurement failed")
		return 1
	}
}

func recordResult(
	recorder journal.Recorder,
	cfg *config.Config,
	handle supervisor.Handle,
	result session.Result,
	startedAt time.Time,
) {
	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}

	entry := &journal.Entry{
		ID:         handle.ID.String(),
		Address:    cfg.Address,
		Interval:   cfg.Interval,
		Duration:   cfg.Duration,
		State:      result.State.String(),
		Samples:    result.Samples,
		OutputPath: result.OutputPath,
		Error:      errText,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := recorder.Record(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("Failed to record session in journal")
	}
}

func handleSignals(sup *supervisor.Supervisor) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal, cancelling measurement")
	sup.Cancel()
}
