package pocketflow

import (
	"sync"
)

// globalDefaults holds the default configuration for all nodes and flows.
var globalDefaults = &defaults{
	opts: initialOptions(),
}

// defaults guards the options every constructor starts from.
type defaults struct {
	mu   sync.RWMutex
	opts options
}

func initialOptions() options {
	return options{
		maxAttempts:     1,
		logger:          NewSlogLogger(nil),
		skip:            DefaultSkipPolicy,
		aggregateAction: ProcessedAction,
	}
}

// SetDefaults configures global defaults for nodes and flows created
// afterwards. Existing nodes keep their configuration.
func SetDefaults(opts ...Option) {
	globalDefaults.mu.Lock()
	defer globalDefaults.mu.Unlock()

	for _, opt := range opts {
		opt(&globalDefaults.opts)
	}
	// Hooks and names are per instance.
	globalDefaults.opts.name = ""
	globalDefaults.opts.prep = nil
	globalDefaults.opts.post = nil
}

// getDefaults returns a copy of the current global defaults.
func getDefaults() options {
	globalDefaults.mu.RLock()
	defer globalDefaults.mu.RUnlock()

	return globalDefaults.opts
}

// ResetDefaults resets all global defaults to their initial values.
func ResetDefaults() {
	globalDefaults.mu.Lock()
	defer globalDefaults.mu.Unlock()

	globalDefaults.opts = initialOptions()
}
