package pocketflow_test

import (
	"context"
	"sync"

	"github.com/agentstation/pocketflow"
)

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
}

func (r *recordingLogger) record(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level: level, msg: msg})
}

func (r *recordingLogger) Debug(_ context.Context, msg string, _ ...any) { r.record("debug", msg) }
func (r *recordingLogger) Info(_ context.Context, msg string, _ ...any)  { r.record("info", msg) }
func (r *recordingLogger) Warn(_ context.Context, msg string, _ ...any)  { r.record("warn", msg) }
func (r *recordingLogger) Error(_ context.Context, msg string, _ ...any) { r.record("error", msg) }

func (r *recordingLogger) messages(level string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

// setKey returns a node whose Post stores value under key and returns action.
func setKey(name, key string, value any, action string) pocketflow.Node {
	return pocketflow.NewNode(name, pocketflow.Steps{
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
			shared[key] = value
			return action, nil
		},
	})
}

// appendTrace returns a node that appends its name to shared["trace"].
func appendTrace(name string) pocketflow.Node {
	return pocketflow.NewNode(name, pocketflow.Steps{
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
			trace, _ := shared["trace"].([]string)
			shared["trace"] = append(trace, name)
			return pocketflow.DefaultAction, nil
		},
	})
}
