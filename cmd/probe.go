package cmd

import (
	"context"
	"fmt"
	"time"

	"co2exporter/v0/internal/config"
	"co2exporter/v0/internal/logger"
	"co2exporter/v0/pkg/co2"
	"co2exporter/v0/pkg/mhz19"
	"github.com/spf13/cobra"
)

// probe reads the sensor once through the same worker the server uses.
func probe(ctx context.Context, sensor co2.Sensor, readTimeout time.Duration, opts ...co2.WorkerOption) (uint16, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tx, rx := co2.NewChannel(co2.Ok(0))
	defer rx.Close()

	worker := co2.NewWorker(sensor, tx, append(opts, co2.WithReadTimeout(readTimeout))...)
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	defer func() { <-done }()
	defer cancel()

	return co2.Request(ctx, rx)
}

func NewProbeCommand() *cobra.Command {
	cfg, loadErr := config.Load()

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Reads the sensor once and prints the CO2 concentration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return fmt.Errorf("failed to load configuration: %v", loadErr)
			}

			log, err := logger.New(config.Verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			sensor, err := mhz19.Open(cfg.SensorPath)
			if err != nil {
				return err
			}
			defer sensor.Close()

			ppm, err := probe(cmd.Context(), sensor, cfg.ReadTimeout, co2.WithLogger(log))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", cfg.SensorPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "CO2: %d ppm\n", ppm)
			return nil
		},
	}

	probeCmd.Flags().StringVar(&cfg.SensorPath, "sensor", cfg.SensorPath, "Path to the sensor's serial device.")
	probeCmd.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Deadline of a single sensor read.")
	return probeCmd
}
