package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/gazeflow/internal/domain/manager"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/server"
)

var errCalibrationFailed = errors.New("calibration failed")

type protocolOptions struct {
	streams string
	stream  string
	collect time.Duration
	timeout time.Duration
	watch   string
}

var (
	calibrateFlags protocolOptions
	validateFlags  protocolOptions
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Collect calibration data and compute a gaze mapping",
	Long: `Calibrate starts the stream set, tells the calibration stream to collect
pupils and markers for --collect, then asks it to calculate and waits for
the result. The stream's pipeline must contain a calibration step.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProtocol(cmd, calibrateFlags, false)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Collect validation data and report the collected markers",
	Long: `Validate runs the same collect/calculate protocol against a validation
step and prints the number of collected markers while collecting.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProtocol(cmd, validateFlags, true)
	},
}

func init() {
	addProtocolFlags(calibrateCmd.Flags(), &calibrateFlags)
	addProtocolFlags(validateCmd.Flags(), &validateFlags)
	_ = calibrateCmd.MarkFlagRequired("file")
	_ = validateCmd.MarkFlagRequired("file")
}

func addProtocolFlags(f *pflag.FlagSet, o *protocolOptions) {
	f.StringVarP(&o.streams, "file", "f", "", "Stream set file (YAML, TOML or JSON)")
	f.StringVar(&o.stream, "stream", "world", "Stream whose pipeline holds the calibration step")
	f.DurationVar(&o.collect, "collect", 10*time.Second, "How long to collect")
	f.DurationVar(&o.timeout, "timeout", time.Minute, "Give up after this long")
	f.StringVar(&o.watch, "watch", "pupil.confidence", "Status key printed while collecting")
}

func runProtocol(cmd *cobra.Command, o protocolOptions, validate bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.HTTP.Enabled = false
	cfg.Engine.RunDuration = 0

	srv, err := server.NewFromFile(cfg, o.streams)
	if err != nil {
		return fmt.Errorf("load %s: %w", o.streams, err)
	}
	defer srv.Close()

	m := srv.Manager()
	if _, ok := m.Stream(o.stream); !ok {
		return fmt.Errorf("%w: %s", manager.ErrUnknownStream, o.stream)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return err
	}
	spin := m.SpinAsync(ctx)
	protoErr := driveProtocol(ctx, cmd.OutOrStdout(), m, o, validate)
	stopErr := m.Stop()
	spinErr := <-spin
	if errors.Is(spinErr, context.Canceled) || errors.Is(spinErr, context.DeadlineExceeded) {
		spinErr = nil
	}
	return errors.Join(protoErr, stopErr, spinErr)
}

func driveProtocol(ctx context.Context, out io.Writer, m *manager.Manager, o protocolOptions, validate bool) error {
	for _, name := range m.Streams() {
		if err := m.AwaitStatus(ctx, name, packet.KeyRunning, true); err != nil {
			return fmt.Errorf("waiting for %s: %w", name, err)
		}
	}

	fmt.Fprintf(out, "Collecting on %s for %s\n", o.stream, o.collect)
	if err := m.SendNotification(packet.Notification{packet.NotifyCollectCalibration: true}, o.stream); err != nil {
		return err
	}
	if err := collect(ctx, out, m, o, validate); err != nil {
		return err
	}

	if err := m.SendNotification(packet.Notification{packet.NotifyCalculateCalibration: true}, o.stream); err != nil {
		return err
	}
	st, err := m.WaitForStatus(ctx, o.stream, packet.FieldCalibrationCalculated, true)
	if err != nil {
		return fmt.Errorf("waiting for result: %w", err)
	}

	result, err := manager.Lookup(st, packet.FieldCalibrationResult)
	if err != nil {
		return err
	}
	if !result.Exists() || result.Type == gjson.Null {
		fmt.Fprintln(out, "Calibration failed")
		return errCalibrationFailed
	}
	fmt.Fprintf(out, "Calibration calculated: %s\n", result.Get("name").String())
	fmt.Fprintln(out, result.Raw)
	return nil
}

// collect waits out the collection window, printing progress once a second.
func collect(ctx context.Context, out io.Writer, m *manager.Manager, o protocolOptions, validate bool) error {
	deadline := time.NewTimer(o.collect)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			line := fmt.Sprintf("%s: %s", o.watch, m.FormatStatus(o.watch))
			if validate {
				if v, err := m.Value(o.stream, packet.FieldCollectedMarkers); err == nil && v.Exists() {
					line += fmt.Sprintf(" | collected markers: %d", v.Int())
				}
			}
			fmt.Fprintln(out, line)
		}
	}
}
