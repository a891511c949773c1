package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/progress"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProcessor(ctx *commandContext) (*media.Processor, *zap.Logger, error) {
	cfg, logger, err := ctx.ensure()
	if err != nil {
		return nil, nil, err
	}
	return media.NewProcessor(media.ProcessorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		MaxThreads:  cfg.FFmpegMaxThreads,
	}, logger), logger, nil
}

// runJob executes job with a progress bar on stderr. Ctrl-C cancels the
// running stage.
func runJob(cmd *cobra.Command, ctx *commandContext, job pipeline.Job) error {
	cfg, _, err := ctx.ensure()
	if err != nil {
		return err
	}
	proc, logger, err := newProcessor(ctx)
	if err != nil {
		return err
	}

	policy := pipeline.KeepOnFailure
	if ctx.cleanupFlag || cfg.CleanupOnFailure {
		policy = pipeline.CleanupOnFailure
	}

	ch := progress.NewChannel()
	errOut := cmd.ErrOrStderr()
	bars := newStageBars(errOut, isTerminal(errOut))
	unsubscribe := ch.Subscribe(bars.onProgress)
	defer unsubscribe()

	orch := pipeline.NewOrchestrator(
		pipeline.NewExecutor(proc.Bind(ch)),
		ch,
		logger,
		pipeline.WithCleanupPolicy(policy),
		pipeline.WithObserver(bars),
	)

	runCtx, stop := interruptible(cmd)
	defer stop()

	run, runErr := orch.Run(runCtx, job)
	bars.close()
	printRun(cmd.OutOrStdout(), run)
	return runErr
}

func printRun(w io.Writer, run pipeline.JobRun) {
	status := run.Status
	fmt.Fprintf(w, "%s", status.Phase)
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, " in %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Fprintln(w)

	for _, out := range run.Outputs() {
		fmt.Fprintf(w, "  output: %s\n", out)
	}
	for _, path := range run.Kept() {
		fmt.Fprintf(w, "  kept: %s\n", path)
	}
	for _, warning := range run.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// stageBars shows one progress bar per running stage. Without a terminal it
// prints one line per stage instead.
type stageBars struct {
	w           io.Writer
	interactive bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newStageBars(w io.Writer, interactive bool) *stageBars {
	return &stageBars{w: w, interactive: interactive}
}

func (s *stageBars) StatusChanged(run pipeline.JobRun) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bar != nil {
		s.bar.Finish()
		fmt.Fprintln(s.w)
		s.bar = nil
	}
	if run.Status.Phase != pipeline.PhaseRunning {
		return
	}
	if !s.interactive {
		fmt.Fprintln(s.w, run.Status.Description)
		return
	}
	s.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(s.w),
		progressbar.OptionSetDescription(run.Status.Description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (s *stageBars) StageFinished(pipeline.StageKind, time.Duration, error) {}

func (s *stageBars) onProgress(u progress.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.Set(int(u.Percent))
	}
}

func (s *stageBars) close() {
	s.StatusChanged(pipeline.JobRun{})
}

// interruptible returns a context cancelled by Ctrl-C
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
