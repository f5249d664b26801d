package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. chain_spawned).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the consequence of a warning.
	FieldImpact = "impact"
	// FieldChainID identifies the workflow chain a line belongs to.
	FieldChainID = "chain_id"
	// FieldRunName is the engine run name of a chain.
	FieldRunName = "run_name"
	// FieldService names a dependent service (catalog, workers).
	FieldService = "service"
	FieldPID     = "pid"
	// FieldExitStatus is the exit code, negative for signal termination.
	FieldExitStatus = "exit_status"
)

type chainKey struct{}

type chainFields struct {
	id      int64
	runName string
}

// ContextWithChain tags ctx with the chain currently being handled.
func ContextWithChain(ctx context.Context, chainID int64, runName string) context.Context {
	return context.WithValue(ctx, chainKey{}, chainFields{id: chainID, runName: runName})
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields, ok := ctx.Value(chainKey{}).(chainFields)
	if !ok {
		return nil
	}
	attrs := []slog.Attr{slog.Int64(FieldChainID, fields.id)}
	if fields.runName != "" {
		attrs = append(attrs, slog.String(FieldRunName, fields.runName))
	}
	return attrs
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
