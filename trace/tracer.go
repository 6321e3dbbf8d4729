// Package trace provides structured execution tracing for the VM: verb
// calls, returns, exceptions, and notify() events, filtered by verb name
// glob and routed through zap so trace output composes with the rest of
// the server's structured logging instead of writing to a bare io.Writer.
package trace

import (
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"moocore/types"
)

// Tracer gates and formats execution trace events.
type Tracer struct {
	enabled bool
	filters []string
	log     *zap.Logger
	mu      sync.Mutex
}

var globalTracer *Tracer

// Init installs the global tracer. A nil logger disables tracing outright.
func Init(enabled bool, filters []string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	globalTracer = &Tracer{enabled: enabled, filters: filters, log: log}
}

// IsEnabled reports whether the global tracer is currently active.
func IsEnabled() bool {
	return globalTracer != nil && globalTracer.enabled
}

func (t *Tracer) matchesFilter(verbName string) bool {
	if len(t.filters) == 0 {
		return true
	}
	for _, pattern := range t.filters {
		if matched, _ := filepath.Match(pattern, verbName); matched {
			return true
		}
	}
	return false
}

// VerbCall logs entry into a verb.
func (t *Tracer) VerbCall(objID types.ObjID, verbName string, args []types.Value, player types.ObjID, caller types.ObjID) {
	if !t.enabled || !t.matchesFilter(verbName) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	argStrs := make([]string, len(args))
	for i, arg := range args {
		argStrs[i] = arg.String()
	}
	t.log.Debug("verb call",
		zap.Int64("this", int64(objID)),
		zap.String("verb", verbName),
		zap.Strings("args", argStrs),
		zap.Int64("player", int64(player)),
		zap.Int64("caller", int64(caller)),
	)
}

// VerbReturn logs a verb's return value.
func (t *Tracer) VerbReturn(objID types.ObjID, verbName string, result types.Value) {
	if !t.enabled || !t.matchesFilter(verbName) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	resultStr := "0"
	if result != nil {
		resultStr = result.String()
	}
	t.log.Debug("verb return",
		zap.Int64("this", int64(objID)),
		zap.String("verb", verbName),
		zap.String("result", resultStr),
	)
}

// Exception logs an uncaught or unwound exception leaving a verb frame.
func (t *Tracer) Exception(objID types.ObjID, verbName string, err types.ErrorCode) {
	if !t.enabled || !t.matchesFilter(verbName) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Debug("verb exception",
		zap.Int64("this", int64(objID)),
		zap.String("verb", verbName),
		zap.String("error", types.NewErr(err).String()),
	)
}

// Notify logs a notify() call, truncating long messages for readability.
func (t *Tracer) Notify(player types.ObjID, message string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	msgDisplay := message
	if len(msgDisplay) > 60 {
		msgDisplay = msgDisplay[:57] + "..."
	}
	t.log.Debug("notify", zap.Int64("player", int64(player)), zap.String("message", msgDisplay))
}

// Connection logs a connection lifecycle event.
func (t *Tracer) Connection(event string, connID int64, player types.ObjID, details string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Debug("connection event",
		zap.String("event", event),
		zap.Int64("conn", connID),
		zap.Int64("player", int64(player)),
		zap.String("details", details),
	)
}

// VerbCall logs a verb call on the global tracer, a no-op if unset.
func VerbCall(objID types.ObjID, verbName string, args []types.Value, player types.ObjID, caller types.ObjID) {
	if globalTracer != nil {
		globalTracer.VerbCall(objID, verbName, args, player, caller)
	}
}

// VerbReturn logs a verb return on the global tracer.
func VerbReturn(objID types.ObjID, verbName string, result types.Value) {
	if globalTracer != nil {
		globalTracer.VerbReturn(objID, verbName, result)
	}
}

// Exception logs an exception on the global tracer.
func Exception(objID types.ObjID, verbName string, err types.ErrorCode) {
	if globalTracer != nil {
		globalTracer.Exception(objID, verbName, err)
	}
}

// Notify logs a notify() call on the global tracer.
func Notify(player types.ObjID, message string) {
	if globalTracer != nil {
		globalTracer.Notify(player, message)
	}
}

// Connection logs a connection event on the global tracer.
func Connection(event string, connID int64, player types.ObjID, details string) {
	if globalTracer != nil {
		globalTracer.Connection(event, connID, player, details)
	}
}
