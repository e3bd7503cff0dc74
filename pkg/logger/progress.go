package logger

import (
	"sync"
	"time"
)

// ProgressStats is a snapshot of a tracked operation
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Current    string        `json:"current"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// ProgressCallback receives a snapshot after every completed step
type ProgressCallback func(ProgressStats)

// ProgressTracker logs the steps of a multi-stage operation
type ProgressTracker struct {
	logger    Logger
	operation string
	total     int
	completed int
	current   string
	startTime time.Time
	stepStart time.Time
	callbacks []ProgressCallback
	mutex     sync.Mutex
}

// NewProgressTracker creates a tracker for an operation with total steps
func NewProgressTracker(log Logger, operation string, total int) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:    log.WithComponent("progress"),
		operation: operation,
		total:     total,
		startTime: now,
		stepStart: now,
	}

	tracker.logger.WithFields(Fields{
		"operation": operation,
		"steps":     total,
	}).Debug("Starting operation")

	return tracker
}

// OnProgress registers a callback invoked after each step
func (p *ProgressTracker) OnProgress(cb ProgressCallback) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// Begin marks the start of a named step
func (p *ProgressTracker) Begin(step string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.current = step
	p.stepStart = time.Now()
}

// Done marks the current step as finished
func (p *ProgressTracker) Done(fields Fields) {
	p.mutex.Lock()
	p.completed++
	stats := p.snapshot()
	callbacks := append([]ProgressCallback(nil), p.callbacks...)
	stepDuration := time.Since(p.stepStart)
	p.mutex.Unlock()

	logFields := Fields{
		"operation": p.operation,
		"step":      stats.Current,
		"duration":  stepDuration.String(),
	}
	for k, v := range fields {
		logFields[k] = v
	}
	p.logger.WithFields(logFields).Debug("Step completed")

	for _, cb := range callbacks {
		cb(stats)
	}
}

// Complete logs the total duration of the operation
func (p *ProgressTracker) Complete() {
	stats := p.Stats()
	p.logger.WithFields(Fields{
		"operation": p.operation,
		"steps":     stats.Completed,
		"duration":  stats.Duration.String(),
	}).Info("Operation completed")
}

// CompleteWithError logs the failure of the current step
func (p *ProgressTracker) CompleteWithError(err error) {
	stats := p.Stats()
	p.logger.WithError(err).WithFields(Fields{
		"operation": p.operation,
		"step":      stats.Current,
		"duration":  stats.Duration.String(),
	}).Error("Operation failed")
}

// Stats returns the current progress snapshot
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.snapshot()
}

func (p *ProgressTracker) snapshot() ProgressStats {
	var percentage float64
	if p.total > 0 {
		percentage = float64(p.completed) / float64(p.total) * 100
	}
	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Completed:  p.completed,
		Current:    p.current,
		Percentage: percentage,
		Duration:   time.Since(p.startTime),
	}
}
