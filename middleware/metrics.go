package middleware

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/pocketflow"
)

// Lifecycle phases reported to a Collector.
const (
	PhasePrep = "prep"
	PhaseExec = "exec"
	PhasePost = "post"
)

// Collector receives node execution metrics. Parallel batch nodes call it
// from several goroutines at once.
type Collector interface {
	RecordPhase(node, phase string, duration time.Duration, err error)
	RecordRouting(node, action string)
}

// Metrics reports the duration and outcome of every phase to collector.
func Metrics(collector Collector) Middleware {
	return func(name string, steps pocketflow.Steps) pocketflow.Steps {
		inner := withDefaults(steps)
		wrapped := inner

		wrapped.Prep = func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			start := time.Now()
			result, err := inner.Prep(ctx, params, shared)
			collector.RecordPhase(name, PhasePrep, time.Since(start), err)
			return result, err
		}

		wrapped.Exec = func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			start := time.Now()
			result, err := inner.Exec(ctx, params, prepResult)
			collector.RecordPhase(name, PhaseExec, time.Since(start), err)
			return result, err
		}

		wrapped.Post = func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, prepResult, execResult any) (string, error) {
			start := time.Now()
			action, err := inner.Post(ctx, params, shared, prepResult, execResult)
			collector.RecordPhase(name, PhasePost, time.Since(start), err)
			if err == nil {
				collector.RecordRouting(name, action)
			}
			return action, err
		}

		return wrapped
	}
}

// NodeStats summarizes one node's recorded executions.
type NodeStats struct {
	Node      string         `json:"node" yaml:"node"`
	Runs      int            `json:"runs" yaml:"runs"`
	ExecCalls int            `json:"exec_calls" yaml:"exec_calls"`
	Errors    int            `json:"errors" yaml:"errors"`
	ExecTime  time.Duration  `json:"exec_time" yaml:"exec_time"`
	TotalTime time.Duration  `json:"total_time" yaml:"total_time"`
	Routes    map[string]int `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// Stats is an in-memory Collector.
type Stats struct {
	mu    sync.Mutex
	nodes map[string]*NodeStats
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{nodes: make(map[string]*NodeStats)}
}

func (s *Stats) node(name string) *NodeStats {
	ns, ok := s.nodes[name]
	if !ok {
		ns = &NodeStats{Node: name, Routes: make(map[string]int)}
		s.nodes[name] = ns
	}
	return ns
}

// RecordPhase implements Collector. A run is counted per prep phase.
func (s *Stats) RecordPhase(node, phase string, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.node(node)
	ns.TotalTime += duration
	if err != nil {
		ns.Errors++
	}
	switch phase {
	case PhasePrep:
		ns.Runs++
	case PhaseExec:
		ns.ExecCalls++
		ns.ExecTime += duration
	}
}

// RecordRouting implements Collector.
func (s *Stats) RecordRouting(node, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node(node).Routes[action]++
}

// Snapshot returns a copy of the collected stats sorted by node name.
func (s *Stats) Snapshot() []NodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NodeStats, 0, len(s.nodes))
	for _, ns := range s.nodes {
		cp := *ns
		cp.Routes = maps.Clone(ns.Routes)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}
