// Package main wires the opentsdb-protector process: a cobra CLI exposing
// start/stop/status/restart subcommands over the config-driven HTTP server
// built by initializeApplication.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adobe/opentsdb-protector/internal/config"
	"github.com/adobe/opentsdb-protector/internal/pkg/logger"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "opentsdb-protector",
		Short: "Protective reverse proxy in front of an OpenTSDB cluster",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")

	root.AddCommand(
		newStartCommand(),
		newStopCommand(),
		newStatusCommand(),
		newRestartCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the protector process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running protector process via its PID file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return stopProcess(cfg.PIDFile)
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the protector process is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			pid, running := checkProcess(cfg.PIDFile)
			if running {
				fmt.Printf("opentsdb-protector is running (pid %d)\n", pid)
				return nil
			}
			fmt.Println("opentsdb-protector is not running")
			return nil
		},
	}
}

func newRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop then start the protector process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if _, running := checkProcess(cfg.PIDFile); running {
				if err := stopProcess(cfg.PIDFile); err != nil {
					return err
				}
			}
			return runStart()
		},
	}
}

// runStart loads configuration, bootstraps logging, builds the dependency
// graph, and blocks serving HTTP until an interrupt or terminate signal
// arrives.
func runStart() error {
	logger.InitBootstrap()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.InitOptions{
		Level:       "info",
		Format:      "json",
		ServiceName: "opentsdb-protector",
		Output: logger.OutputOptions{
			ToStdout: cfg.Foreground || cfg.LogFile == "",
			ToFile:   cfg.LogFile != "",
			FilePath: cfg.LogFile,
		},
		Rotation: logger.RotationOptions{
			MaxSizeMB:  cfg.Log.MaxBytes / (1024 * 1024),
			MaxBackups: cfg.Log.BackupCount,
			Compress:   cfg.Log.Rotate,
		},
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			return fmt.Errorf("write pidfile: %w", err)
		}
		defer os.Remove(cfg.PIDFile)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer app.Cleanup()

	errCh := make(chan error, 1)
	go func() {
		logger.L().Sugar().Infow("listening", "addr", cfg.ListenAddr(), "backend", cfg.BackendOrigin(), "safe_mode", cfg.SafeMode)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.L().Sugar().Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Server.Shutdown(ctx)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile %s: %w", path, err)
	}
	return pid, nil
}

// checkProcess reports whether the PID recorded in path names a live
// process. Sending signal 0 does not deliver a signal, it only probes.
func checkProcess(path string) (int, bool) {
	pid, err := readPIDFile(path)
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return pid, false
	}
	return pid, true
}

func stopProcess(path string) error {
	pid, running := checkProcess(path)
	if !running {
		return fmt.Errorf("opentsdb-protector is not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to pid %d\n", pid)
	return nil
}
