package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"framestab/internal/batch"
	"framestab/internal/metrics"
	"framestab/internal/video"
)

func stabilizeCmd(a *app) *cobra.Command {
	var (
		clip clipFlags
		raw  bool
	)
	cmd := &cobra.Command{
		Use:   "stabilize <input> <output>",
		Short: "Stabilize a clip and write the result",
		Long: "Reads a video file or a directory of PNG frames, runs the stabilization pipeline " +
			"and writes a video (.mp4 .mkv .mov .webm .avi) or a directory of PNG frames.",
		Args: cobra.ExactArgs(2),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			input, output := args[0], args[1]
			c, err := video.Load(ctx, input, clip.apply(a.loadOptions()))
			if err != nil {
				return err
			}

			if !raw {
				before, err := metrics.Compute(c.Frames, a.metricsOptions())
				if err != nil {
					return err
				}
				frames, err := a.pipeline().Stabilize(ctx, c.Frames)
				if err != nil {
					a.collector.ObserveClip("failed", &before, nil)
					return err
				}
				after, err := metrics.Compute(frames, a.metricsOptions())
				if err != nil {
					return err
				}
				a.collector.ObserveClip("ok", &before, &after)
				a.logger.Debug("stability",
					zap.Float64("luminance_var_before", before.LuminanceVar),
					zap.Float64("luminance_var_after", after.LuminanceVar),
					zap.Float64("pixel_diff_var_before", before.PixelDiffVar),
					zap.Float64("pixel_diff_var_after", after.PixelDiffVar),
				)
				c.Frames = frames
			}

			if err := video.Save(ctx, c, output, a.saveOptions()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", len(c.Frames), output)
			return nil
		}),
	}
	clip.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "copy frames through without stabilizing")
	return cmd
}

func analyzeCmd(a *app) *cobra.Command {
	var (
		clip   clipFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <input>",
		Short: "Print stability metrics for a clip",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			c, err := video.Load(ctx, args[0], clip.apply(a.loadOptions()))
			if err != nil {
				return err
			}
			report, err := metrics.Compute(c.Frames, a.metricsOptions())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), args[0], report)
			return nil
		}),
	}
	clip.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// comparison is the document written by compare --report.
type comparison struct {
	Input      string             `json:"input"`
	Output     string             `json:"output,omitempty"`
	Before     metrics.Report     `json:"before"`
	After      metrics.Report     `json:"after"`
	Comparison metrics.Comparison `json:"comparison"`
}

func compareCmd(a *app) *cobra.Command {
	var (
		clip   clipFlags
		output string
		report string
	)
	cmd := &cobra.Command{
		Use:   "compare <input>",
		Short: "Measure a clip before and after stabilization",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			c, err := video.Load(ctx, args[0], clip.apply(a.loadOptions()))
			if err != nil {
				return err
			}
			before, err := metrics.Compute(c.Frames, a.metricsOptions())
			if err != nil {
				return err
			}
			frames, err := a.pipeline().Stabilize(ctx, c.Frames)
			if err != nil {
				a.collector.ObserveClip("failed", &before, nil)
				return err
			}
			after, err := metrics.Compute(frames, a.metricsOptions())
			if err != nil {
				return err
			}
			a.collector.ObserveClip("ok", &before, &after)

			doc := comparison{
				Input:      args[0],
				Output:     output,
				Before:     before,
				After:      after,
				Comparison: metrics.Compare(before, after),
			}

			w := cmd.OutOrStdout()
			printReport(w, "before", before)
			printReport(w, "after", after)
			fmt.Fprintf(w, "flicker reduced: %v\ntone stabilized: %v\njitter reduced: %v\nstable: %v\n",
				doc.Comparison.FlickerReduced, doc.Comparison.ToneStabilized,
				doc.Comparison.JitterReduced, doc.Comparison.Stable)

			if output != "" {
				if err := video.Save(ctx, video.Clip{Frames: frames, FPS: c.FPS}, output, a.saveOptions()); err != nil {
					return err
				}
			}
			if report != "" {
				if err := writeJSONFile(report, doc); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	clip.register(cmd)
	cmd.Flags().StringVar(&output, "output", "", "also save the stabilized clip here")
	cmd.Flags().StringVar(&report, "report", "", "write the comparison as JSON to this file")
	return cmd
}

func batchCmd(a *app) *cobra.Command {
	var (
		outputDir string
		report    string
		pngFrames bool
	)
	cmd := &cobra.Command{
		Use:   "batch <input>...",
		Short: "Stabilize many clips and write a JSON report",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("output-dir") {
				a.cfg.Batch.OutputDir = outputDir
			}
			if cmd.Flags().Changed("report") {
				a.cfg.Batch.Report = report
			}

			loadOpts := a.loadOptions()
			saveOpts := a.saveOptions()
			runner := &batch.Runner{
				Pipeline: a.pipeline(),
				Load: func(ctx context.Context, path string) (video.Clip, error) {
					return video.Load(ctx, path, loadOpts)
				},
				Save: func(ctx context.Context, clip video.Clip, path string) error {
					return video.Save(ctx, clip, path, saveOpts)
				},
				Metrics:     a.metricsOptions(),
				Observer:    a.collector,
				OutputDir:   a.cfg.Batch.OutputDir,
				PNGFrames:   pngFrames,
				MinDuration: a.cfg.Batch.MinDuration,
				MaxDuration: a.cfg.Batch.MaxDuration,
				Logger:      a.logger,
			}

			jobs := make([]batch.Job, len(args))
			for i, in := range args {
				jobs[i] = batch.Job{Input: in}
			}
			results := runner.Run(ctx, jobs)

			reportPath := a.cfg.Batch.Report
			if reportPath == "" {
				reportPath = filepath.Join(a.cfg.Batch.OutputDir, "batch_results.json")
			}
			if err := batch.WriteReport(reportPath, results); err != nil {
				return err
			}

			var failed, stable int
			for _, r := range results {
				switch {
				case r.Error != "":
					failed++
				case r.Comparison.Stable:
					stable++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d clips stable, %d failed, report: %s\n",
				stable, len(jobs), failed, reportPath)

			if err := ctx.Err(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d clips failed", failed, len(jobs))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for stabilized clips (default from config)")
	cmd.Flags().StringVar(&report, "report", "", "JSON report path (default <output-dir>/batch_results.json)")
	cmd.Flags().BoolVar(&pngFrames, "png-frames", false, "write PNG frame directories instead of .mp4 files")
	return cmd
}

func printReport(w io.Writer, label string, r metrics.Report) {
	fmt.Fprintf(w, "%s: %d frames %dx%d\n", label, r.Frames, r.Width, r.Height)
	fmt.Fprintf(w, "  mean_luminance  %.4f\n", r.MeanLuminance)
	fmt.Fprintf(w, "  luminance_var   %.4f\n", r.LuminanceVar)
	fmt.Fprintf(w, "  color_var       %.4f\n", r.ColorVar)
	fmt.Fprintf(w, "  channel_var     %.4f %.4f %.4f\n", r.ChannelVar[0], r.ChannelVar[1], r.ChannelVar[2])
	fmt.Fprintf(w, "  frame_diff_var  %.4f\n", r.FrameDiffVar)
	fmt.Fprintf(w, "  pixel_diff_var  %.4f\n", r.PixelDiffVar)
	fmt.Fprintf(w, "  hue_drift       %.4f\n", r.HueDrift)
	fmt.Fprintf(w, "  palette_drift   %.4f\n", r.PaletteDrift)
	if r.LoopDistance != nil {
		fmt.Fprintf(w, "  loop_distance   %.4f (looped: %v)\n", *r.LoopDistance, r.Looped)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return nil
}
