package app

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"corpusprep/internal/config"
	"corpusprep/internal/language"
	"corpusprep/internal/media"
)

// FileResult is the outcome of processing one input file
type FileResult struct {
	Path     string
	Kind     media.Kind
	Language string
	Segments int
	Written  int
	Skipped  int
	Err      error
}

// Status is a short label for the summary table
func (r FileResult) Status() string {
	switch {
	case r.Err == nil:
		return "ok"
	case errors.Is(r.Err, media.ErrUnrecognizedMedia):
		return "not media"
	case errors.Is(r.Err, language.ErrUnsupportedLanguage):
		return "unsupported language"
	case errors.Is(r.Err, ErrDuplicateStem):
		return "duplicate name"
	case errors.Is(r.Err, ErrNotShortClip):
		return "not a wav clip"
	default:
		return "failed"
	}
}

// Report aggregates the outcome of a run
type Report struct {
	RunID          string
	Mode           string
	Files          []FileResult
	MediaFiles     int
	Records        int
	Destination    string
	AnnotationPath string
	Interrupted    bool
}

// Succeeded counts files whose clips made it into the annotation file
func (r *Report) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.Err == nil {
			n++
		}
	}
	return n
}

// Table renders the per-file outcomes
func (r *Report) Table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"File", "Kind", "Language", "Segments", "Written", "Skipped", "Status"})
	for _, f := range r.Files {
		lang := ""
		if f.Language != "" {
			lang = fmt.Sprintf("%s (%s)", f.Language, language.DisplayName(f.Language))
		}
		tw.AppendRow(table.Row{f.Path, string(f.Kind), lang, f.Segments, f.Written, f.Skipped, f.Status()})
	}
	tw.AppendFooter(table.Row{"", "", "", "", r.Records, "", fmt.Sprintf("%d/%d ok", r.Succeeded(), len(r.Files))})
	return tw.Render()
}

func (app *Application) logSummary(log *zap.Logger, report *Report) {
	if app.summary != nil && len(report.Files) > 0 {
		fmt.Fprintln(app.summary, report.Table())
		fmt.Fprintln(app.summary, app.monitor.GetPerformanceSummary())
	}
	app.monitor.LogCurrentMetrics()

	log.Info("corpus preparation finished",
		zap.Int("files", len(report.Files)),
		zap.Int("media_files", report.MediaFiles),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("records", report.Records),
		zap.String("annotation", absOrSelf(report.AnnotationPath)),
		zap.Bool("interrupted", report.Interrupted))

	if report.Records > 0 {
		return
	}
	if report.Mode == config.ModeShorts {
		log.Warn("no short audios found; this is expected if only long recordings or videos were provided",
			zap.String("input_dir", app.config.GetInputDir()))
		log.Warn("this is not expected if short clips were supplied; check the file layout and that the audio language is supported",
			zap.String("languages", string(app.tokens.Preset())))
		return
	}
	if report.MediaFiles == 0 {
		log.Warn("no audio or video files found", zap.String("input_dir", app.config.GetInputDir()))
		return
	}
	log.Warn("media files were found but no usable segments were produced; check that the recordings contain speech in a supported language",
		zap.Int("media_files", report.MediaFiles),
		zap.String("languages", string(app.tokens.Preset())))
}
