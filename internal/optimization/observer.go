package optimization

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// IterationRecord is an immutable snapshot of one iteration.
type IterationRecord struct {
	Iteration    int       `json:"iteration"`
	Point        []float64 `json:"point"`
	Value        float64   `json:"value"`
	Gradient     []float64 `json:"gradient,omitempty"`
	GradientNorm float64   `json:"gradient_norm"`
	// Step is the step length that produced Point; nil on the first record.
	Step *float64 `json:"step,omitempty"`
	// StepSatisfied reports whether the line search that chose Step met its
	// acceptance criterion; nil when no line search was involved.
	StepSatisfied *bool `json:"step_satisfied,omitempty"`
}

// Clone returns a deep copy of r.
func (r IterationRecord) Clone() IterationRecord {
	out := r
	out.Point = append([]float64(nil), r.Point...)
	if r.Gradient != nil {
		out.Gradient = append([]float64(nil), r.Gradient...)
	}
	if r.Step != nil {
		s := *r.Step
		out.Step = &s
	}
	if r.StepSatisfied != nil {
		b := *r.StepSatisfied
		out.StepSatisfied = &b
	}
	return out
}

// Observer receives one record per iteration. Records are independent
// copies; implementations may keep them.
type Observer interface {
	Observe(record IterationRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(record IterationRecord)

// Observe implements Observer.
func (f ObserverFunc) Observe(record IterationRecord) {
	f(record)
}

// MultiObserver fans a record out to several observers in order.
type MultiObserver []Observer

// Observe implements Observer.
func (m MultiObserver) Observe(record IterationRecord) {
	for _, o := range m {
		if o != nil {
			o.Observe(record.Clone())
		}
	}
}

// Recorder accumulates observed records. It is safe for concurrent use, but
// the intended pattern is one Recorder per run.
type Recorder struct {
	mu      sync.RWMutex
	records []IterationRecord
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe implements Observer.
func (r *Recorder) Observe(record IterationRecord) {
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()
}

// Records returns a copy of everything observed so far.
func (r *Recorder) Records() []IterationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IterationRecord, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Clone()
	}
	return out
}

// Last returns the most recent record.
func (r *Recorder) Last() (IterationRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.records) == 0 {
		return IterationRecord{}, false
	}
	return r.records[len(r.records)-1].Clone(), true
}

// Len returns the number of records.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Reset drops all records so the Recorder can be reused.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// WriteSummary writes a fixed-width table of the observed iterations.
func (r *Recorder) WriteSummary(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%4s | %12s | %12s | %10s\n", "Iter", "f(x)", "‖∇f‖", "Step α")
	b.WriteString(strings.Repeat("-", 46))
	b.WriteByte('\n')
	for _, rec := range r.Records() {
		step := "-"
		if rec.Step != nil {
			step = fmt.Sprintf("%.6f", *rec.Step)
		}
		fmt.Fprintf(&b, "%4d | %12.6f | %12.6f | %10s\n", rec.Iteration, rec.Value, rec.GradientNorm, step)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ZapObserver logs each iteration at debug level.
type ZapObserver struct {
	Logger *zap.Logger
}

// NewZapObserver creates an observer writing to logger. A nil logger
// discards everything.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapObserver{Logger: logger}
}

// Observe implements Observer.
func (z *ZapObserver) Observe(record IterationRecord) {
	fields := []zap.Field{
		zap.Int("iteration", record.Iteration),
		zap.Float64s("point", record.Point),
		zap.Float64("value", record.Value),
		zap.Float64("gradient_norm", record.GradientNorm),
	}
	if record.Step != nil {
		fields = append(fields, zap.Float64("step", *record.Step))
	}
	if record.StepSatisfied != nil {
		fields = append(fields, zap.Bool("step_satisfied", *record.StepSatisfied))
	}
	z.Logger.Debug("iteration", fields...)
}
