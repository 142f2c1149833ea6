package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miragesec/mirage/internal/api"
	"github.com/miragesec/mirage/internal/audit"
	"github.com/miragesec/mirage/internal/config"
	"github.com/miragesec/mirage/internal/logging"
	"github.com/miragesec/mirage/internal/metrics"
	"github.com/miragesec/mirage/internal/proxy"
	"github.com/miragesec/mirage/internal/state"
)

var version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "mirage",
		Short: "Mirage - deception reverse proxy",
		Long: `Mirage sits in front of a protected backend and decides, per request,
whether to forward it unchanged or answer with a fabricated decoy response.
Decoy content and suspicious-IP classification are maintained externally in
the shared state directory; Mirage only reads them and appends audit logs.`,
	}

	rootCmd.AddCommand(newStartCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newStartCmd() *cobra.Command {
	var (
		configPath string
		target     string
		port       int
		stateDir   string
		trust      []string
		aggressive bool
		requestLog bool
		adminAddr  string
		logDir     string
		logLevel   string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the deception proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flags override file values when set on the command line.
			flags := cmd.Flags()
			if flags.Changed("target") {
				cfg.Server.TargetOrigin = target
			}
			if flags.Changed("port") {
				cfg.Server.ListenPort = port
			}
			if flags.Changed("state-dir") {
				cfg.System.StateDir = stateDir
			}
			if flags.Changed("trust") {
				cfg.Policy.TrustedIPs = append(cfg.Policy.TrustedIPs, trust...)
			}
			if flags.Changed("aggressive") {
				cfg.Policy.Aggressive = aggressive
			}
			if flags.Changed("request-log") {
				cfg.Policy.RequestLogging = requestLog
			}
			if flags.Changed("admin-addr") {
				cfg.Server.AdminAddr = adminAddr
			}
			if flags.Changed("log-dir") {
				cfg.System.LogDir = logDir
			}
			if flags.Changed("log-level") {
				cfg.System.LogLevel = logLevel
			}
			if flags.Changed("debug") {
				cfg.System.Debug = debug
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	cmd.Flags().StringVar(&target, "target", "http://localhost:3000", "backend origin to forward to")
	cmd.Flags().IntVar(&port, "port", 8000, "port to accept traffic on")
	cmd.Flags().StringVar(&stateDir, "state-dir", "../state", "directory holding classification files and audit logs")
	cmd.Flags().StringArrayVar(&trust, "trust", nil, "trusted IP, never served a decoy (repeatable)")
	cmd.Flags().BoolVar(&aggressive, "aggressive", false, "serve decoys to all non-trusted IPs, not only suspicious ones")
	cmd.Flags().BoolVar(&requestLog, "request-log", true, "append every request to the general proxy log")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin API listen address (empty disables)")
	cmd.Flags().StringVar(&logDir, "log-dir", "./logs", "directory for diagnostic logs")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "diagnostic log level (debug, info, error)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mirage %s\n", version)
		},
	}
}

func run(cfg *config.Config) error {
	if err := logging.Init(cfg.System.LogDir, cfg.System.LogLevel, cfg.System.Debug); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logging.Close()

	store := state.NewStore(cfg.System.StateDir)
	auditLog := audit.New(cfg.System.StateDir, cfg.Policy.RequestLogging)
	defer auditLog.Close()

	m := metrics.New()

	srv, err := proxy.NewServer(cfg, store, auditLog, m)
	if err != nil {
		return err
	}

	if cfg.Server.AdminAddr != "" {
		adminSrv := api.NewAPIServer(cfg.Server.AdminAddr, store, m)
		go func() {
			logging.Info("[API] Admin API listening on %s", cfg.Server.AdminAddr)
			if err := adminSrv.Start(); err != nil {
				logging.Error("[API] Admin API stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("[MAIN] Received %s, stopping listener", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
