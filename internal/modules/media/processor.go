package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nextconvert/cutstudio/internal/modules/progress"
	"go.uber.org/zap"
)

// EngineError is a failure reported by ffmpeg or ffprobe. Message is the
// diagnostic shown to the user.
type EngineError struct {
	Op      string
	Message string
}

func (e *EngineError) Error() string {
	return e.Message
}

// commandResult is what a finished command left behind
type commandResult struct {
	ExitCode int
	Stderr   string
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// ProcessorConfig configures processor behavior
type ProcessorConfig struct {
	FFmpegPath  string
	FFprobePath string
	MaxThreads  int // 0 = let ffmpeg decide
}

// Processor runs trim, merge, resize and delete operations with ffmpeg.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	maxThreads  int
	runner      commandRunner
	progress    *progress.Channel
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// NewProcessor creates a processor. It reports no progress until bound to a channel.
func NewProcessor(cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &Processor{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		maxThreads:  cfg.MaxThreads,
		runner:      execRunner{},
		logger:      logger,
		now:         time.Now,
		newID:       shortID,
	}
}

// Bind returns a copy of the processor that pushes progress into ch.
func (p *Processor) Bind(ch *progress.Channel) *Processor {
	c := *p
	c.progress = ch
	return &c
}

// Trim copies duration seconds starting at start out of input without re-encoding.
func (p *Processor) Trim(ctx context.Context, input string, start, duration, index int) (string, error) {
	output := trimOutputPath(input, index)
	args := []string{
		"-i", input,
		"-ss", strconv.Itoa(start),
		"-t", strconv.Itoa(duration),
		"-c", "copy",
	}
	if err := p.run(ctx, "trim", float64(duration), p.withOutput(args, output)); err != nil {
		return "", err
	}
	return output, nil
}

// Resize scales input to width x height, copying the audio stream. An empty
// output selects <stem>_resized_<W>x<H>.<ext> next to the input.
func (p *Processor) Resize(ctx context.Context, input string, width, height int, hint float64, output string) (string, error) {
	if output == "" {
		output = resizeOutputPath(input, width, height)
	}
	args := []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-c:a", "copy",
	}
	if err := p.run(ctx, "resize", hint, p.withOutput(args, output)); err != nil {
		return "", err
	}
	return output, nil
}

// Merge concatenates inputs with the concat demuxer into
// merged_<unix>_<id>.mp4 next to the first input. The id keeps concurrent
// merges in a shared directory apart.
func (p *Processor) Merge(ctx context.Context, inputs []string, hint float64) (string, error) {
	if len(inputs) == 0 {
		return "", &EngineError{Op: "merge", Message: "No input files provided"}
	}

	dir := filepath.Dir(inputs[0])
	listPath, err := writeConcatList(dir, inputs)
	if err != nil {
		return "", &EngineError{Op: "merge", Message: fmt.Sprintf("failed to write concat list: %v", err)}
	}
	defer os.Remove(listPath)

	output := filepath.Join(dir, fmt.Sprintf("merged_%d_%s.mp4", p.now().Unix(), p.newID()))
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
	}
	if err := p.run(ctx, "merge", hint, p.withOutput(args, output)); err != nil {
		return "", err
	}
	return output, nil
}

// Delete removes every path. Missing files are ignored; other failures are
// joined into the returned error after all paths were attempted.
func (p *Processor) Delete(_ context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("Failed to delete file", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) withOutput(args []string, output string) []string {
	if p.maxThreads > 0 {
		args = append(args, "-threads", strconv.Itoa(p.maxThreads))
	}
	return append(args, "-y", "-progress", "pipe:1", output)
}

func (p *Processor) run(ctx context.Context, op string, totalSeconds float64, args []string) error {
	p.logger.Info("Executing FFmpeg", zap.String("op", op), zap.Strings("args", args))

	pw := newProgressWriter(totalSeconds, p.progress, p.logger)
	result, err := p.runner.Run(ctx, p.ffmpegPath, args, pw)
	pw.Flush()

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	p.logger.Warn("FFmpeg failed",
		zap.String("op", op),
		zap.Int("exit_code", result.ExitCode),
		zap.String("stderr", tail(result.Stderr, 2048)),
		zap.Error(err),
	)
	if result.ExitCode > 0 {
		return &EngineError{Op: op, Message: fmt.Sprintf("FFmpeg process exited with code %d", result.ExitCode)}
	}
	return &EngineError{Op: op, Message: err.Error()}
}

func trimOutputPath(input string, index int) string {
	dir, stem, ext := splitPath(input)
	suffix := "_trimmed"
	if index > 0 {
		suffix = fmt.Sprintf("_part%d", index)
	}
	return filepath.Join(dir, stem+suffix+ext)
}

func resizeOutputPath(input string, width, height int) string {
	dir, stem, ext := splitPath(input)
	return filepath.Join(dir, fmt.Sprintf("%s_resized_%dx%d%s", stem, width, height, ext))
}

func splitPath(path string) (dir, stem, ext string) {
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	return filepath.Dir(path), strings.TrimSuffix(base, ext), ext
}

// writeConcatList writes a concat demuxer list into dir and returns its path.
func writeConcatList(dir string, inputs []string) (string, error) {
	f, err := os.CreateTemp(dir, "concats-*.txt")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, in := range inputs {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(in, `\`, "/"))
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// progressWriter parses ffmpeg -progress output line by line and pushes
// percentages of totalSeconds into a progress channel.
type progressWriter struct {
	mu      sync.Mutex
	buf     []byte
	totalUS float64
	ch      *progress.Channel
	logger  *zap.Logger
}

func newProgressWriter(totalSeconds float64, ch *progress.Channel, logger *zap.Logger) *progressWriter {
	return &progressWriter{totalUS: totalSeconds * 1e6, ch: ch, logger: logger}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.handle(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush handles a trailing line without a newline.
func (w *progressWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.handle(string(w.buf))
		w.buf = nil
	}
}

func (w *progressWriter) handle(line string) {
	us, ok := parseProgressLine(line)
	if !ok || w.totalUS <= 0 || w.ch == nil {
		return
	}
	percent := us / w.totalUS * 100
	if percent > 100 {
		percent = 100
	}
	w.logger.Debug("FFmpeg progress", zap.Float64("percent", percent))
	w.ch.Push(progress.Update{Percent: percent, Status: "processing"})
}

// parseProgressLine extracts the microsecond value from an out_time_us=N line.
func parseProgressLine(line string) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || strings.TrimSpace(key) != "out_time_us" {
		return 0, false
	}
	us, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(us), true
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
