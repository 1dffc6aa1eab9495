package cmd

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"co2exporter/v0/internal/config"
	"co2exporter/v0/internal/logger"
	"co2exporter/v0/pkg/co2"
	"co2exporter/v0/pkg/mhz19"
	"co2exporter/v0/pkg/remotewrite"
	"co2exporter/v0/server"
	"co2exporter/v0/server/route/telegram"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func handleServerCmd(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	log, err := logger.New(config.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addrs, err := config.ResolveListenAddrs(ctx, cfg.ListenAddrs)
	if err != nil {
		return fmt.Errorf("failed to resolve listen addresses: %v", err)
	}
	cfg.ListenAddrs = addrs
	logStartup(log, cfg)

	sensor, err := mhz19.Open(cfg.SensorPath)
	if err != nil {
		return err
	}
	defer sensor.Close()

	tx, rx := co2.NewChannel(co2.Ok(0))
	defer rx.Close()

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		if bot, err = telegram.Init(cfg.TelegramToken, rx, cfg.TelegramAllowedChats, log.Named("telegram")); err != nil {
			tx.Close()
			return fmt.Errorf("failed to instantiate the telegram bot: %v", err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	worker := co2.NewWorker(sensor, tx, co2.WithReadTimeout(cfg.ReadTimeout), co2.WithLogger(log.Named("worker")))
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
		log.Info("measurement worker stopped")
	}()

	if cfg.RemoteWriteURL != "" {
		pusher := remotewrite.New(cfg.RemoteWriteURL, rx,
			remotewrite.WithInterval(cfg.RemoteWriteInterval),
			remotewrite.WithLogger(log.Named("remotewrite")))
		wg.Add(1)
		go func() {
			defer wg.Done()
			pusher.Run(ctx)
		}()
	}

	if bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Run(ctx)
		}()
	}

	opts := &server.ServerOpts{
		ServerName:          "localhost",
		ServerCertificate:   cfg.TLSCertificate,
		ServerKey:           cfg.TLSKey,
		TrustedCASDirectory: cfg.TLSClientCADir,
		CACrl:               cfg.TLSCrl,
		ListenAddrs:         cfg.ListenAddrs,
		Logger:              log.Named("server"),
		OnReady: func(addrs []net.Addr) {
			notifyReady(log, addrs)
		},
	}
	if err := server.Run(ctx, opts, rx); err != nil {
		return fmt.Errorf("failed server command: %v", err)
	}
	return nil
}

func logStartup(log *zap.Logger, cfg config.Config) {
	log.Info("Starting co2exporter", zap.String("version", binVersion))
	for _, line := range strings.Split(strings.TrimSpace(cfg.String()), "\n") {
		log.Info(line)
	}
}

// notifyReady tells systemd the exporter is serving. Outside of systemd this
// is a no-op.
func notifyReady(log *zap.Logger, addrs []net.Addr) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("failed to notify systemd", zap.Error(err))
	}
	log.Info("Ready.", zap.Int("listeners", len(addrs)))
}

func NewServerCommand() *cobra.Command {
	// Flags default to the environment.
	cfg, loadErr := config.Load()

	srvCmd := &cobra.Command{
		Use:   "server",
		Short: "Starts the exporter on the configured addresses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return fmt.Errorf("failed to load configuration: %v", loadErr)
			}
			return handleServerCmd(cmd.Context(), cfg)
		},
	}

	flags := srvCmd.Flags()
	flags.StringVar(&cfg.SensorPath, "sensor", cfg.SensorPath, "Path to the sensor's serial device.")
	flags.StringSliceVar(&cfg.ListenAddrs, "listen", cfg.ListenAddrs, "host:port addresses to serve metrics on.")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Deadline of a single sensor read.")
	flags.StringVar(&cfg.TLSCertificate, "tls-cert", cfg.TLSCertificate, "Path to server's certificate.")
	flags.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "Path to server's key.")
	flags.StringVar(&cfg.TLSClientCADir, "tls-client-ca-dir", cfg.TLSClientCADir, "Directory of CA certificates trusted to sign client certificates.")
	flags.StringVar(&cfg.TLSCrl, "tls-crl", cfg.TLSCrl, "Path to the CA Certificate Revocation List (CRL).")
	flags.StringVar(&cfg.RemoteWriteURL, "remote-write-url", cfg.RemoteWriteURL, "Prometheus remote-write endpoint to push readings to.")
	flags.DurationVar(&cfg.RemoteWriteInterval, "remote-write-interval", cfg.RemoteWriteInterval, "Interval between remote-write pushes.")

	return srvCmd
}
