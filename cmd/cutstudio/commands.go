package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"github.com/nextconvert/cutstudio/internal/modules/segments"
	"github.com/nextconvert/cutstudio/internal/shared/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sizeFlags selects an output size by preset or explicit dimensions
type sizeFlags struct {
	preset string
	width  int
	height int
}

func (f *sizeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "Fixed size preset (see `cutstudio presets`)")
	cmd.Flags().IntVar(&f.width, "width", 0, "Output width in pixels")
	cmd.Flags().IntVar(&f.height, "height", 0, "Output height in pixels")
}

// resolve picks the preset, the explicit size or the configured default
func (f *sizeFlags) resolve(cfg *config.Config) (int, int, error) {
	explicit := f.width != 0 || f.height != 0
	switch {
	case f.preset != "" && explicit:
		return 0, 0, errors.New("use either --preset or --width/--height")
	case f.preset != "":
		p, ok := presets.Lookup(f.preset)
		if !ok {
			return 0, 0, fmt.Errorf("unknown preset %q", f.preset)
		}
		return p.Width, p.Height, nil
	case explicit:
		if f.width <= 0 || f.height <= 0 {
			return 0, 0, errors.New("--width and --height must both be positive")
		}
		return f.width, f.height, nil
	default:
		return cfg.DefaultWidth, cfg.DefaultHeight, nil
	}
}

// parseSegments reads START-END pairs in HH:MM:SS through a segment set, so
// the same validation applies as in the editor.
func parseSegments(specs []string) ([]segments.Segment, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one --segment is required")
	}
	set := segments.NewSet()
	for _, spec := range specs {
		start, end, ok := strings.Cut(spec, "-")
		if !ok {
			return nil, fmt.Errorf("segment %q: want START-END, e.g. 00:01:00-00:01:30", spec)
		}
		if _, err := set.Add(start, end); err != nil {
			return nil, fmt.Errorf("segment %q: %w", spec, err)
		}
	}
	return set.List(), nil
}

// probeDuration returns the media duration in seconds, or 0 when it cannot be read
func probeDuration(ctx context.Context, proc *media.Processor, path string, logger *zap.Logger) float64 {
	info, err := proc.Probe(ctx, path)
	if err != nil {
		logger.Warn("Could not read duration, progress will not be shown", zap.String("path", path), zap.Error(err))
		return 0
	}
	return info.Duration
}

func newTrimCommand(ctx *commandContext) *cobra.Command {
	var specs []string

	cmd := &cobra.Command{
		Use:   "trim SOURCE",
		Short: "Cut one clip per segment out of SOURCE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segs, err := parseSegments(specs)
			if err != nil {
				return err
			}
			return runJob(cmd, ctx, pipeline.TrimJob{Source: args[0], Segments: segs})
		},
	}
	cmd.Flags().StringArrayVarP(&specs, "segment", "s", nil, "Segment START-END in HH:MM:SS (repeatable)")
	return cmd
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "merge INPUT INPUT...",
		Short: "Concatenate clips into one file next to the first input",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, logger, err := newProcessor(ctx)
			if err != nil {
				return err
			}
			var total float64
			for _, in := range args {
				d := probeDuration(cmd.Context(), proc, in, logger)
				if d == 0 {
					total = 0
					break
				}
				total += d
			}
			return runJob(cmd, ctx, pipeline.MergeJob{Inputs: args, TotalDurationHint: total})
		},
	}
}

func newResizeCommand(ctx *commandContext) *cobra.Command {
	var size sizeFlags
	var output string

	cmd := &cobra.Command{
		Use:   "resize INPUT...",
		Short: "Scale each input to the chosen size",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			width, height, err := size.resolve(cfg)
			if err != nil {
				return err
			}
			proc, logger, err := newProcessor(ctx)
			if err != nil {
				return err
			}
			return runJob(cmd, ctx, pipeline.ResizeJob{
				Inputs:          args,
				Width:           width,
				Height:          height,
				OutputPath:      output,
				PreviewSource:   args[0],
				PreviewDuration: probeDuration(cmd.Context(), proc, args[0], logger),
			})
		},
	}
	size.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (single input only)")
	return cmd
}

func newAutoCommand(ctx *commandContext) *cobra.Command {
	var specs []string
	var size sizeFlags
	var output string

	cmd := &cobra.Command{
		Use:   "auto SOURCE",
		Short: "Trim the segments, merge them and resize the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			segs, err := parseSegments(specs)
			if err != nil {
				return err
			}
			width, height, err := size.resolve(cfg)
			if err != nil {
				return err
			}
			return runJob(cmd, ctx, pipeline.AutomationJob{
				Source:     args[0],
				Segments:   segs,
				Width:      width,
				Height:     height,
				OutputPath: output,
			})
		},
	}
	cmd.Flags().StringArrayVarP(&specs, "segment", "s", nil, "Segment START-END in HH:MM:SS (repeatable)")
	size.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path for the final video")
	return cmd
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE",
		Short: "Show container and stream details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, _, err := newProcessor(ctx)
			if err != nil {
				return err
			}
			probeCtx, stop := interruptible(cmd)
			defer stop()

			info, err := proc.Probe(probeCtx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMediaInfo(info))
			return nil
		},
	}
}

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the fixed resize presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderPresets(presets.List()))
			return nil
		},
	}
}
