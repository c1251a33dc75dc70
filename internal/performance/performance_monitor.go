package performance

import (
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

// Pipeline stages timed by the monitor
const (
	StageSeparation    = "separation"
	StageTranscription = "transcription"
	StageSegmentation  = "segmentation"
	StageConversion    = "conversion"
)

// StageMetrics tracks timing and outcome counts for one pipeline stage
type StageMetrics struct {
	Stage     string
	Runs      int64
	Failures  int64
	TotalTime time.Duration
	AvgTime   time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	LastTime  time.Duration
	LastItem  string
	LastError string
}

// StageTimer tracks timing for one stage run
type StageTimer struct {
	Stage          string
	Item           string
	StartTime      time.Time
	ProcessingTime time.Duration
}

// PerformanceMonitor handles per-stage performance tracking and reporting
type PerformanceMonitor struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	stages    map[string]*StageMetrics
	order     []string
	benchmark bool
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *zap.Logger) *PerformanceMonitor {
	return &PerformanceMonitor{
		logger: logger,
		stages: make(map[string]*StageMetrics),
	}
}

// NewPerformanceMonitorWithBenchmark creates a performance monitor with benchmarking enabled
func NewPerformanceMonitorWithBenchmark(logger *zap.Logger, benchmark bool) *PerformanceMonitor {
	pm := NewPerformanceMonitor(logger)
	pm.benchmark = benchmark
	return pm
}

// Start begins timing a stage run for item (usually a file path)
func (pm *PerformanceMonitor) Start(stage, item string) *StageTimer {
	return &StageTimer{
		Stage:     stage,
		Item:      item,
		StartTime: time.Now(),
	}
}

// End completes timing and folds the run into the stage metrics; err marks a failed run
func (pm *PerformanceMonitor) End(timer *StageTimer, err error) {
	timer.ProcessingTime = time.Since(timer.StartTime)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	m, ok := pm.stages[timer.Stage]
	if !ok {
		m = &StageMetrics{Stage: timer.Stage, MinTime: time.Duration(1<<63 - 1)}
		pm.stages[timer.Stage] = m
		pm.order = append(pm.order, timer.Stage)
	}

	m.Runs++
	m.TotalTime += timer.ProcessingTime
	m.LastTime = timer.ProcessingTime
	m.LastItem = timer.Item
	if err != nil {
		m.Failures++
		m.LastError = err.Error()
	}
	if timer.ProcessingTime < m.MinTime {
		m.MinTime = timer.ProcessingTime
	}
	if timer.ProcessingTime > m.MaxTime {
		m.MaxTime = timer.ProcessingTime
	}
	m.AvgTime = time.Duration(int64(m.TotalTime) / m.Runs)

	if pm.benchmark {
		pm.logger.Info("stage performance",
			zap.String("stage", timer.Stage),
			zap.String("item", timer.Item),
			zap.Duration("processing_time", timer.ProcessingTime),
			zap.Bool("failed", err != nil))
	}
}

// GetMetrics returns a copy of every stage's metrics in first-seen order
func (pm *PerformanceMonitor) GetMetrics() []StageMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := make([]StageMetrics, 0, len(pm.order))
	for _, name := range pm.order {
		out = append(out, *pm.stages[name])
	}
	return out
}

// Stage returns a copy of one stage's metrics
func (pm *PerformanceMonitor) Stage(name string) (StageMetrics, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	m, ok := pm.stages[name]
	if !ok {
		return StageMetrics{}, false
	}
	return *m, true
}

// GetPerformanceSummary renders the stage metrics as a table
func (pm *PerformanceMonitor) GetPerformanceSummary() string {
	metrics := pm.GetMetrics()
	if len(metrics) == 0 {
		return "No stage metrics available"
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Stage", "Runs", "Failures", "Total", "Avg", "Min", "Max"})
	for _, m := range metrics {
		tw.AppendRow(table.Row{
			m.Stage,
			m.Runs,
			m.Failures,
			m.TotalTime.Round(time.Millisecond),
			m.AvgTime.Round(time.Millisecond),
			m.MinTime.Round(time.Millisecond),
			m.MaxTime.Round(time.Millisecond),
		})
	}
	return tw.Render()
}

// ResetMetrics clears all accumulated metrics
func (pm *PerformanceMonitor) ResetMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stages = make(map[string]*StageMetrics)
	pm.order = nil

	pm.logger.Debug("performance metrics reset")
}

// BenchmarkMode enables or disables per-run logging
func (pm *PerformanceMonitor) BenchmarkMode(enabled bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.benchmark = enabled
	pm.logger.Info("benchmark mode", zap.Bool("enabled", enabled))
}

// LogCurrentMetrics logs the current metrics of every stage
func (pm *PerformanceMonitor) LogCurrentMetrics() {
	for _, m := range pm.GetMetrics() {
		pm.logger.Info("stage metrics",
			zap.String("stage", m.Stage),
			zap.Int64("runs", m.Runs),
			zap.Int64("failures", m.Failures),
			zap.Duration("total_time", m.TotalTime),
			zap.Duration("avg_time", m.AvgTime),
			zap.Duration("max_time", m.MaxTime),
		)
	}
}
