package app

import (
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Progress receives the overall completion percentage of a run
type Progress interface {
	Set(percent int, description string)
	Finish()
}

// NewProgress returns a terminal progress bar when stderr is a TTY and a log-based reporter otherwise
func NewProgress(logger *zap.Logger) Progress {
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return &barProgress{bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("preparing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)}
	}
	return &logProgress{logger: logger, step: 10, last: -1}
}

type barProgress struct {
	bar *progressbar.ProgressBar
}

func (p *barProgress) Set(percent int, description string) {
	p.bar.Describe(description)
	_ = p.bar.Set(percent)
}

func (p *barProgress) Finish() {
	_ = p.bar.Finish()
}

// logProgress logs whenever the percentage crosses the next step
type logProgress struct {
	logger *zap.Logger
	step   int
	last   int
}

func (p *logProgress) Set(percent int, description string) {
	if p.last >= 0 && percent < p.last+p.step && percent < 100 {
		return
	}
	if percent == p.last {
		return
	}
	p.last = percent
	p.logger.Info("progress", zap.Int("percent", percent), zap.String("current", description))
}

func (p *logProgress) Finish() {}

// NopProgress discards progress updates
type NopProgress struct{}

func (NopProgress) Set(int, string) {}
func (NopProgress) Finish()         {}

// progressTracker converts file and segment positions into an overall percentage.
// Each file is an equal share; within a file the share is split across its segments.
type progressTracker struct {
	progress Progress
	files    int
}

func newProgressTracker(p Progress, files int) *progressTracker {
	return &progressTracker{progress: p, files: files}
}

func (t *progressTracker) percent(file int, fraction float64) int {
	if t.files == 0 {
		return 100
	}
	pct := int(100 * (float64(file) + fraction) / float64(t.files))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// file returns the per-segment callback for file index i
func (t *progressTracker) file(i int, path string) func(done, total int) {
	name := filepath.Base(path)
	t.progress.Set(t.percent(i, 0), name)
	return func(done, total int) {
		if total == 0 {
			return
		}
		t.progress.Set(t.percent(i, float64(done)/float64(total)), name)
	}
}

func (t *progressTracker) fileDone(i int) {
	t.progress.Set(t.percent(i, 1), "")
}
