package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/pslog"

	"pkt.systems/secretd"
	"pkt.systems/secretd/internal/loggingutil"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("SECRETD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "secretd")
	root := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	ran, err := root.ExecuteContextC(ctx)
	if err != nil {
		if err != context.Canceled {
			if ran == root {
				loggingutil.WithSubsystem(baseLogger, "cli", "root").Error("command failed", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
		}
		return 1
	}
	return 0
}

func formatBytes(n int) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""
	if cfgPath == "" {
		candidate, err := secretd.DefaultConfigPath()
		if err != nil {
			return "", nil
		}
		cfgPath = candidate
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// serverFlagNames are the persistent flags shared by every command that
// builds a server. They map 1:1 onto viper keys, SECRETD_* env vars and
// config file keys.
var serverFlagNames = []string{
	"config",
	"strategy", "capacity", "initial-secret",
	"inject-fault", "fault-delay", "max-spin-hold", "violation-policy",
	"metrics-listen", "pprof-listen", "enable-profiling-metrics", "otlp-endpoint",
	"log-level",
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var statsInterval time.Duration
	cmd := &cobra.Command{
		Use:           "secretd",
		Short:         "secretd hosts a shared secret record behind blocking, spin or atomic synchronization",
		SilenceErrors: true,
		Example: `
  # Hold a server open with Prometheus metrics until interrupted
  secretd --strategy spin --metrics-listen 127.0.0.1:9464

  # Drive 100 concurrent sessions and check the counter invariants
  secretd stress --sessions 100 --strategy atomic

  # The userspace harness flow: write a secret, then read it back
  secretd rdwr --op w=initmsg --op r
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			srv, logger, err := openServer(cmd, baseLogger)
			if err != nil {
				return err
			}
			defer shutdownServer(srv, logger)

			logger.Info("secretd.running",
				"pid", os.Getpid(),
				"strategy", srv.Strategy().String(),
				"capacity", formatBytes(srv.Capacity()),
			)
			if path := viper.ConfigFileUsed(); path != "" {
				viper.OnConfigChange(func(e fsnotify.Event) {
					logger.Warn("secretd.config.changed", "file", e.Name, "op", e.Op.String(), "note", "restart to apply")
				})
				viper.WatchConfig()
			}
			var tick <-chan time.Time
			if statsInterval > 0 {
				ticker := time.NewTicker(statsInterval)
				defer ticker.Stop()
				tick = ticker.C
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-tick:
					st := srv.Stats(ctx)
					logger.Info("secretd.stats",
						"ga", st.GA,
						"gb", st.GB,
						"tx", st.Record.BytesSent,
						"rx", st.Record.BytesReceived,
						"errors", st.Record.Errors,
						"violations", st.Violations,
					)
				}
			}
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.secretd/"+secretd.DefaultConfigFileName+")")
	persistentFlags.StringP("strategy", "s", secretd.DefaultStrategy, "locking strategy (blocking, spin, atomic)")
	persistentFlags.String("capacity", formatBytes(secretd.DefaultCapacity), "secret buffer capacity (e.g. 128, 4KiB)")
	persistentFlags.String("initial-secret", "", "secret stored at startup (empty means reads fail until the first write)")
	persistentFlags.Bool("inject-fault", false, "suspend inside the write critical section to demonstrate violation detection")
	persistentFlags.Duration("fault-delay", secretd.DefaultFaultDelay, "how long an injected fault suspends the lock holder")
	persistentFlags.Duration("max-spin-hold", secretd.DefaultMaxSpinHold, "spin critical sections held longer than this are violations (negative disables)")
	persistentFlags.String("violation-policy", secretd.DefaultViolationPolicy, "what to do on a contract violation (log, panic)")
	persistentFlags.String("metrics-listen", secretd.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	persistentFlags.String("pprof-listen", secretd.DefaultPprofListen, "pprof listen address (debug/pprof endpoints; empty disables)")
	persistentFlags.Bool("enable-profiling-metrics", false, "enable Go runtime metrics on the Prometheus endpoint")
	persistentFlags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	persistentFlags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	if err := persistentFlags.MarkHidden("inject-fault"); err != nil {
		panic(err)
	}
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 0, "log record and counter stats at this interval (0 disables)")

	bindFlag := func(flags *pflag.FlagSet, name string) {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("SECRETD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range serverFlagNames {
		bindFlag(persistentFlags, name)
	}

	cmd.AddCommand(newStressCommand(baseLogger))
	cmd.AddCommand(newRdwrCommand(baseLogger))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindConfig(cfg *secretd.Config) error {
	cfg.Strategy = viper.GetString("strategy")
	if raw := strings.TrimSpace(viper.GetString("capacity")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("parse capacity: %w", err)
		}
		if size > secretd.MaxCapacity {
			return fmt.Errorf("capacity %s exceeds %s", raw, formatBytes(secretd.MaxCapacity))
		}
		cfg.Capacity = int(size)
	}
	cfg.InitialSecret = viper.GetString("initial-secret")
	cfg.InjectFault = viper.GetBool("inject-fault")
	cfg.FaultDelay = viper.GetDuration("fault-delay")
	cfg.MaxSpinHold = viper.GetDuration("max-spin-hold")
	cfg.ViolationPolicy = viper.GetString("violation-policy")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.PprofListen = viper.GetString("pprof-listen")
	cfg.EnableProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	cfg.OTLPEndpoint = viper.GetString("otlp-endpoint")
	return nil
}

// openServer loads the config file, applies flags and env, and starts a
// server. The returned logger is tagged for the invoking command.
func openServer(cmd *cobra.Command, baseLogger pslog.Logger) (*secretd.Server, pslog.Logger, error) {
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(viper.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	cliLogger := loggingutil.WithSubsystem(logger, "cli", cmd.Name())

	configFile, err := loadConfigFile()
	if err != nil {
		return nil, nil, err
	}
	if configFile != "" {
		cliLogger.Info("loaded config file", "path", configFile)
	}
	var cfg secretd.Config
	if err := bindConfig(&cfg); err != nil {
		return nil, nil, err
	}
	srv, err := secretd.NewServer(cfg, secretd.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return srv, cliLogger, nil
}

func shutdownServer(srv *secretd.Server, logger pslog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
