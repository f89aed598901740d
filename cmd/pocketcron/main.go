package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pocketcron/pocketcron/internal/crontab"
	"github.com/pocketcron/pocketcron/internal/executor"
	"github.com/pocketcron/pocketcron/internal/monitor"
	"github.com/pocketcron/pocketcron/internal/scheduler"
	"github.com/pocketcron/pocketcron/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config file (yaml)")
	flag.Parse()

	crontabs := flag.Args()
	if len(crontabs) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: pocketcron [-config file] <crontab...>")
		return 2
	}

	v := viper.New()
	setDefaults(v)
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "failed to read config file:", err)
			return 1
		}
	}

	logger, err := newLogger(v.GetString("log.level"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		return 1
	}
	defer logger.Sync()

	loc := time.Local
	if tz := v.GetString("timezone"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			logger.Error("invalid timezone", zap.String("timezone", tz), zap.Error(err))
			return 1
		}
	}

	// All-or-nothing: any malformed crontab entry aborts startup.
	jobs, err := crontab.Load(crontabs)
	if err != nil {
		logger.Error("failed to load crontabs", zap.Error(err))
		return 1
	}
	logger.Info("crontabs loaded",
		zap.Strings("files", crontabs),
		zap.Int("jobs", len(jobs)),
		zap.String("timezone", loc.String()))

	history, err := storage.NewRunHistory(logger, v.GetString("history.dsn"))
	if err != nil {
		logger.Error("failed to open run history", zap.Error(err))
		return 1
	}
	defer history.Close()

	alerts := monitor.NewAlertManager(v.GetInt("monitor.failure_threshold"), logger)
	runner := executor.NewShellRunner(v.GetString("shell"), v.GetDuration("run_timeout"), logger)
	dispatcher := executor.NewDispatcher(runner, history, alerts, logger)
	sched := scheduler.New(jobs, loc, dispatcher, alerts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if v.GetBool("monitor.enabled") {
		collector := monitor.NewMetricsCollector(
			stats{sched, dispatcher}, v.GetDuration("monitor.interval"), logger)
		go collector.Start(ctx)
	}

	if dsn := v.GetString("history.dsn"); dsn != storage.DefaultDSN {
		if retention := v.GetDuration("history.retention"); retention > 0 {
			go retentionLoop(ctx, history, retention, logger)
		}
	}

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler failed", zap.Error(err))
		return 1
	}

	// Grace period for in-flight runs; they are not killed, just no longer
	// awaited past the deadline.
	grace := v.GetDuration("scheduler.grace_period")
	waitCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := dispatcher.Wait(waitCtx); err != nil {
		logger.Warn("grace period reached, abandoning in-flight runs",
			zap.Int("running", dispatcher.RunningCount()),
			zap.Duration("grace_period", grace))
	}

	logger.Info("shut down cleanly")
	return 0
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "")
	v.SetDefault("shell", "/bin/sh")
	v.SetDefault("run_timeout", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("history.dsn", storage.DefaultDSN)
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", time.Minute)
	v.SetDefault("monitor.failure_threshold", monitor.DefaultFailureThreshold)
	v.SetDefault("scheduler.grace_period", 10*time.Second)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// stats joins the scheduler's pending count and the dispatcher's running
// count for the metrics collector.
type stats struct {
	scheduler  *scheduler.Scheduler
	dispatcher *executor.Dispatcher
}

func (s stats) PendingCount() int { return s.scheduler.PendingCount() }
func (s stats) RunningCount() int { return s.dispatcher.RunningCount() }

// retentionLoop prunes file-backed run history once a day.
func retentionLoop(ctx context.Context, history *storage.RunHistory, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := history.DeleteBefore(ctx, time.Now().Add(-retention)); err != nil {
				logger.Error("failed to prune run history", zap.Error(err))
			}
		}
	}
}
