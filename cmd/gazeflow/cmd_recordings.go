package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/gazeflow/internal/recording"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

var recordingsFlags struct {
	root    string
	pattern string
	json    bool
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List recorded frame files below a root directory",
	RunE:  runRecordings,
}

func init() {
	f := recordingsCmd.Flags()
	f.StringVar(&recordingsFlags.root, "root", "", "Search root (default: $RECORDING_ROOT)")
	f.StringVar(&recordingsFlags.pattern, "pattern", "", "Doublestar pattern relative to the root (default: **/*"+recording.FramesExt+")")
	f.BoolVar(&recordingsFlags.json, "json", false, "Print JSON instead of a table")
}

func runRecordings(cmd *cobra.Command, _ []string) error {
	root := recordingsFlags.root
	if root == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		root = cfg.Recording.Root
	}

	recs, err := recording.Discover(cmd.Context(), root, recordingsFlags.pattern)
	if err != nil {
		return fmt.Errorf("discover %s: %w", root, err)
	}
	out := cmd.OutOrStdout()

	if recordingsFlags.json {
		data, err := codec.MarshalIndent(recs)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(recs) == 0 {
		fmt.Fprintf(out, "No recordings under %s\n", root)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name\tFrames\tDuration\tSize\tModified\tDir\n")
	fmt.Fprintf(w, "----\t------\t--------\t----\t--------\t---\n")
	for _, r := range recs {
		dur := "-"
		if d, err := r.Duration(); err == nil {
			dur = fmt.Sprintf("%.2fs", d)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n",
			r.Name, r.Frames, dur, r.Size, r.Modified.Format("2006-01-02 15:04:05"), r.Dir)
	}
	return w.Flush()
}
