// Command rdft-server runs the RDFT dispatch loop over UDP, exposing
// Prometheus metrics and accepting configuration via flags, environment, and
// an optional .env file (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rdft/internal/rconfig"
	"rdft/internal/rlog"
	"rdft/internal/rmetrics"
	"rdft/internal/rserver"
	"rdft/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var envFile, logLevel string

	cmd := &cobra.Command{
		Use:   "rdft-server",
		Short: "Reliable Datagram File Transfer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(v, envFile, logLevel)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "listen host")
	flags.Int("port", 9000, "listen port")
	flags.String("storage-base", "./storage", "root directory for user storage trees")
	flags.String("metrics-addr", "127.0.0.1:9100", "address to serve Prometheus /metrics on")
	flags.String("env-file", "", "optional .env file to load before resolving configuration")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("host", flags.Lookup("host"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("storage_base", flags.Lookup("storage-base"))
	_ = v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		envFile, _ = flags.GetString("env-file")
		return nil
	}

	return cmd
}

func runServer(v *viper.Viper, envFile, logLevel string) error {
	cfg, err := rconfig.Load(v, envFile)
	if err != nil {
		return err
	}

	log := rlog.New(logLevel)
	fs := afero.NewOsFs()
	metrics := rmetrics.New()

	tp, err := transport.NewUDP(cfg.Host, cfg.Port, cfg.SocketTimeout)
	if err != nil {
		return fmt.Errorf("rdft-server: binding socket: %w", err)
	}
	defer tp.Close()

	srv, err := rserver.New(rserver.Config{
		CwndStart:        cfg.CwndStart,
		SoftTimeout:      cfg.SocketTimeout,
		DownloadWorkers:  cfg.DownloadWorkers,
		StorageBase:      cfg.StorageBase,
		FilePathMaxLen:   cfg.FilePathMaxLength,
		SingleSegmentMin: cfg.SingleSegmentMin,
		SingleSegmentMax: cfg.SingleSegmentMax,
	}, tp, fs, log, metrics)
	if err != nil {
		return fmt.Errorf("rdft-server: constructing server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	log.WithField("addr", tp.LocalAddr().String()).Info("rdft-server listening")
	return srv.Run(ctx)
}
