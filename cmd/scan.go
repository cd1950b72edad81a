package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/services"
)

var scanOpts struct {
	Stride     int
	Downsample float64
}

var scanCmd = &cobra.Command{
	Use:   "scan <video>",
	Short: "Process a local video file and store its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("stride") {
			cfg.FrameStride = scanOpts.Stride
		}
		if cmd.Flags().Changed("downsample") {
			cfg.DownsampleFactor = scanOpts.Downsample
		}

		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read video: %w", err)
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		progress := newScanProgress()
		res, err := a.videoService(cfg, nil).ProcessFile(cmd.Context(), filepath.Base(path), path, services.ProcessOptions{
			OnProgress: progress.update,
		})
		progress.finish()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d detection(s), %d unique face(s)\n", len(res.Report.Detections), len(res.Report.UniqueFaces))
		for _, face := range res.Report.UniqueFaces {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %s\n", face.Name, face.ImagePath)
		}
		fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(a.artifacts.Dir(artifacts.AssetTypeReport), res.ResultsPath))
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVarP(&scanOpts.Stride, "stride", "n", pipeline.DefaultStride, "Sample every nth frame")
	scanCmd.Flags().Float64VarP(&scanOpts.Downsample, "downsample", "s", pipeline.DefaultDownsampleFactor, "Detection resolution factor (1 disables downsampling)")
	rootCmd.AddCommand(scanCmd)
}

// scanProgress draws a bar over sample points. The total is only known once
// the first sample has been processed.
type scanProgress struct {
	bar *progressbar.ProgressBar
}

func newScanProgress() *scanProgress { return &scanProgress{} }

func (p *scanProgress) update(pr pipeline.Progress) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(pr.SamplesExpected,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("samples"),
		)
	}
	_ = p.bar.Set(pr.SamplesDone)
}

func (p *scanProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}
