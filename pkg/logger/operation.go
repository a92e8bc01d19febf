package logger

import (
	"time"
)

// OperationLogger provides structured logging for multi-phase operations with
// timing. The reconciliation engine uses it to log its grouping, evaluating
// and reporting phases with a shared run context.
type OperationLogger struct {
	operation string
	logger    Logger
	started   time.Time
	fields    Fields
}

// NewOperationLogger creates a new operation logger and logs the start of the
// operation.
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		operation: operation,
		logger:    logger.WithField("operation", operation),
		started:   time.Now(),
		fields:    make(Fields),
	}

	ol.logger.Debug("operation started")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	ol.logger = ol.logger.WithField(key, value)
	return ol
}

// Step logs a phase transition within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithFields(Fields{
		"step":    step,
		"elapsed": time.Since(ol.started).String(),
	}).Debug("operation step")
}

// Progress logs counted progress within a phase
func (ol *OperationLogger) Progress(message string, processed, total int) {
	fields := Fields{
		"processed": processed,
		"elapsed":   time.Since(ol.started).String(),
	}
	if total > 0 {
		fields["total"] = total
		fields["percent"] = float64(processed) / float64(total) * 100.0
	}
	ol.logger.WithFields(fields).Debug(message)
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithField("duration", time.Since(ol.started).String()).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).
		WithField("duration", time.Since(ol.started).String()).
		Error(message)
}

// Elapsed returns the time since the operation started
func (ol *OperationLogger) Elapsed() time.Duration {
	return time.Since(ol.started)
}
