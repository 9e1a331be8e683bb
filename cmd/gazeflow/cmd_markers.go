package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
)

var markersFlags struct {
	dir       string
	name      string
	out       string
	threshold int
	minRadius float64
	maxRadius float64
}

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Detect calibration markers in a recorded world video",
	Long: `Markers replays circle marker detection over every frame of a recording
and writes one row per detected marker to <out>/<name>_markers.jsonl.zst.`,
	RunE: runMarkers,
}

func init() {
	f := markersCmd.Flags()
	f.StringVar(&markersFlags.dir, "dir", "", "Recording directory (required)")
	f.StringVar(&markersFlags.name, "name", "world", "Recording name inside --dir")
	f.StringVar(&markersFlags.out, "out", "", "Output directory (default: --dir)")
	f.IntVar(&markersFlags.threshold, "threshold", 0, "Binarization threshold (0 = automatic)")
	f.Float64Var(&markersFlags.minRadius, "min-radius", 3, "Smallest marker radius in pixels")
	f.Float64Var(&markersFlags.maxRadius, "max-radius", 0, "Largest marker radius in pixels (0 = unbounded)")

	_ = markersCmd.MarkFlagRequired("dir")
}

func runMarkers(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, _, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		return err
	}
	defer logger.Sync()

	reader, err := recording.Open(markersFlags.dir, markersFlags.name)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer reader.Close()

	det := process.NewCircleDetector(process.CircleDetectorConfig{
		Threshold: markersFlags.threshold,
		MinRadius: markersFlags.minRadius,
		MaxRadius: markersFlags.maxRadius,
	}, process.Env{Stream: markersFlags.name, Logger: logger})
	defer det.Stop()

	frames, err := det.BatchRun(cmd.Context(), reader)
	if err != nil {
		return fmt.Errorf("detect markers: %w", err)
	}
	ds := process.NewMarkerDataset(frames)

	outDir := markersFlags.out
	if outDir == "" {
		outDir = markersFlags.dir
	}
	path, err := ds.Save(outDir, markersFlags.name+"_markers")
	if err != nil {
		return fmt.Errorf("save markers: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Detected %d markers in %d frames\n", ds.Len(), len(frames))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
