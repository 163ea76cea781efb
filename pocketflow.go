package pocketflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/agentstation/pocketflow/internal/retry"
)

// DefaultAction is the action followed when Post returns an empty action.
const DefaultAction = "default"

// ProcessedAction is the edge a parallel batch flow follows from its start
// node once every worker has been merged back.
const ProcessedAction = "processed"

// Common errors.
var (
	// ErrFlowExec is returned when Exec is called on a flow.
	ErrFlowExec = errors.New("pocketflow: flow can't exec directly")

	// ErrNoStartNode is returned when a flow has no start node defined.
	ErrNoStartNode = errors.New("pocketflow: no start node defined")

	// ErrNodeNotFound is returned when a referenced node doesn't exist.
	ErrNodeNotFound = errors.New("pocketflow: node not found")

	// ErrKeyNotFound is returned when a required shared or param key is missing.
	ErrKeyNotFound = errors.New("pocketflow: key not found")
)

// PrepFunc reads the shared context and returns the value handed to Exec.
type PrepFunc func(ctx context.Context, params Params, shared Shared) (prepResult any, err error)

// ExecFunc performs the node's primary work. It has no access to the shared
// context. In batch nodes it is called once per item.
type ExecFunc func(ctx context.Context, params Params, prepResult any) (execResult any, err error)

// PostFunc writes results into the shared context and returns the next action.
type PostFunc func(ctx context.Context, params Params, shared Shared, prepResult, execResult any) (action string, err error)

// FallbackFunc is called once every Exec attempt has failed. execErr is the
// error of the last attempt. Returning an error fails the node.
type FallbackFunc func(ctx context.Context, params Params, prepResult any, execErr error) (result any, err error)

// Steps groups the lifecycle hooks for a node.
// All fields are optional.
type Steps struct {
	Prep     PrepFunc
	Exec     ExecFunc
	Post     PostFunc
	Fallback FallbackFunc
}

// Node is a unit of a workflow graph. Plain nodes and flows both implement it.
type Node interface {
	// Name returns the node's identifier.
	Name() string

	// Params returns the node's current parameter set.
	Params() Params

	// SetParams replaces the parameter set and returns the node.
	SetParams(params Params) Node

	// On registers next as the successor for action and returns the node.
	// Registering the same action twice keeps the latest successor.
	On(action string, next Node) Node

	// Next registers next for the default action and returns next, so
	// chains read a.Next(b).Next(c).
	Next(next Node) Node

	// Successors returns the action to successor mapping. It must not be
	// modified while the node runs.
	Successors() map[string]Node

	// Lifecycle hooks.
	Prep(ctx context.Context, shared Shared) (prepResult any, err error)
	Exec(ctx context.Context, prepResult any) (execResult any, err error)
	Post(ctx context.Context, shared Shared, prepResult, execResult any) (action string, err error)

	// Run executes the node standalone and returns its action. Successors
	// are not visited; use a Flow for that.
	Run(ctx context.Context, shared Shared) (action string, err error)

	lifecycle(ctx context.Context, shared Shared) (string, error)
	clone() Node
}

// core holds the state every node kind shares: parameters and edges.
type core struct {
	name       string
	params     Params
	successors map[string]Node
	logger     Logger
}

func newCore(name string, logger Logger) core {
	if logger == nil {
		logger = NopLogger()
	}
	return core{
		name:       name,
		params:     Params{},
		successors: make(map[string]Node),
		logger:     logger,
	}
}

// Name returns the node's identifier.
func (c *core) Name() string {
	return c.name
}

// Params returns the node's current parameter set.
func (c *core) Params() Params {
	return c.params
}

// Successors returns all connected nodes.
func (c *core) Successors() map[string]Node {
	return c.successors
}

func (c *core) setParams(params Params) {
	if params == nil {
		params = Params{}
	}
	c.params = params
}

func (c *core) connect(action string, next Node) {
	if action == "" {
		action = DefaultAction
	}
	if _, exists := c.successors[action]; exists {
		c.logger.Warn(context.Background(), "overwriting successor", "node", c.name, "action", action)
	}
	c.successors[action] = next
}

func (c *core) warnIfSuccessors(ctx context.Context) {
	if len(c.successors) > 0 {
		c.logger.Warn(ctx, "node won't run successors, use a flow", "node", c.name, "successors", len(c.successors))
	}
}

// copyCore duplicates params and edges one level deep. Successor targets are
// still shared.
func (c *core) copyCore() core {
	cp := *c
	cp.params = maps.Clone(c.params)
	if cp.params == nil {
		cp.params = Params{}
	}
	cp.successors = maps.Clone(c.successors)
	if cp.successors == nil {
		cp.successors = make(map[string]Node)
	}
	return cp
}

// successorFor returns the successor of n for action, or nil.
func successorFor(n Node, action string) Node {
	return n.Successors()[normalizeAction(action)]
}

func normalizeAction(action string) string {
	if action == "" {
		return DefaultAction
	}
	return action
}

var _ Node = (*node)(nil)

type execMode int

const (
	modeSingle execMode = iota
	modeBatch
	modeParallelBatch
)

// node is the private implementation of Node for simple execution units.
type node struct {
	core
	steps  Steps
	policy retry.Policy
	mode   execMode
}

// NewNode creates a node that runs Exec once per run, retried per WithRetry.
//
// Example:
//
//	double := pocketflow.NewNode("double", pocketflow.Steps{
//	    Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
//	        return shared["current"], nil
//	    },
//	    Exec: func(ctx context.Context, params pocketflow.Params, n any) (any, error) {
//	        return n.(int) * 2, nil
//	    },
//	    Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, out any) (string, error) {
//	        shared["current"] = out
//	        return pocketflow.DefaultAction, nil
//	    },
//	}, pocketflow.WithRetry(3, time.Second))
func NewNode(name string, steps Steps, opts ...Option) Node {
	return newNode(name, steps, modeSingle, opts)
}

// NewBatchNode creates a node whose Prep returns a slice; Exec (with its
// retry policy) runs once per item in order and Post receives the results
// as []any aligned with the input.
func NewBatchNode(name string, steps Steps, opts ...Option) Node {
	return newNode(name, steps, modeBatch, opts)
}

// NewParallelBatchNode is NewBatchNode with every item executed concurrently.
// Output order still matches input order.
func NewParallelBatchNode(name string, steps Steps, opts ...Option) Node {
	return newNode(name, steps, modeParallelBatch, opts)
}

func newNode(name string, steps Steps, mode execMode, opts []Option) *node {
	o := buildOptions(opts)
	return &node{
		core:   newCore(name, o.logger),
		steps:  steps,
		policy: retry.New(o.maxAttempts, o.wait),
		mode:   mode,
	}
}

// SetParams replaces the parameter set.
func (n *node) SetParams(params Params) Node {
	n.setParams(params)
	return n
}

// On adds a successor node for the given action.
func (n *node) On(action string, next Node) Node {
	n.connect(action, next)
	return n
}

// Next adds a successor for the default action.
func (n *node) Next(next Node) Node {
	n.connect(DefaultAction, next)
	return next
}

// Prep implements the preparation phase of the node lifecycle.
func (n *node) Prep(ctx context.Context, shared Shared) (any, error) {
	if n.steps.Prep == nil {
		return nil, nil
	}
	return n.steps.Prep(ctx, n.params, shared)
}

// Exec implements a single execution attempt.
func (n *node) Exec(ctx context.Context, prepResult any) (any, error) {
	if n.steps.Exec == nil {
		return nil, nil
	}
	return n.steps.Exec(ctx, n.params, prepResult)
}

// Post implements the post-processing phase of the node lifecycle.
func (n *node) Post(ctx context.Context, shared Shared, prepResult, execResult any) (string, error) {
	if n.steps.Post == nil {
		return DefaultAction, nil
	}
	return n.steps.Post(ctx, n.params, shared, prepResult, execResult)
}

// Run executes the node's lifecycle standalone.
func (n *node) Run(ctx context.Context, shared Shared) (string, error) {
	n.warnIfSuccessors(ctx)
	action, err := n.lifecycle(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("node %s: %w", n.name, err)
	}
	return action, nil
}

// lifecycle runs Prep, the retrying Exec and Post. Prep and Post failures are
// never retried.
func (n *node) lifecycle(ctx context.Context, shared Shared) (string, error) {
	prepResult, err := n.Prep(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("prep: %w", err)
	}

	var execResult any
	switch n.mode {
	case modeBatch:
		execResult, err = n.execBatch(ctx, prepResult)
	case modeParallelBatch:
		execResult, err = n.execParallelBatch(ctx, prepResult)
	default:
		execResult, err = n.execWithRetry(ctx, prepResult)
	}
	if err != nil {
		return "", err
	}

	action, err := n.Post(ctx, shared, prepResult, execResult)
	if err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	return normalizeAction(action), nil
}

// execWithRetry runs Exec under the node's retry policy. The attempt counter
// lives in the loop, not on the node, so concurrent clones never share it.
func (n *node) execWithRetry(ctx context.Context, input any) (any, error) {
	result, err := n.policy.Do(ctx, func(ctx context.Context, attempt int) (any, error) {
		return n.Exec(withAttempt(ctx, attempt), input)
	}, func(attempt int, err error) {
		n.logger.Debug(ctx, "retrying exec",
			"node", n.name,
			"attempt", attempt,
			"max_attempts", n.policy.MaxAttempts,
			"error", err)
	})
	if err == nil {
		return result, nil
	}

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || n.steps.Fallback == nil {
		return nil, fmt.Errorf("exec: %w", err)
	}

	n.logger.Debug(ctx, "executing fallback", "node", n.name, "error", exhausted.Err)
	fallbackResult, err := n.steps.Fallback(ctx, n.params, input, exhausted.Err)
	if err != nil {
		return nil, fmt.Errorf("exec fallback: %w", err)
	}
	return fallbackResult, nil
}

func (n *node) clone() Node {
	cp := *n
	cp.core = n.copyCore()
	return &cp
}

type attemptKey struct{}

func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// Attempt returns the 1-based attempt number of the Exec call that received
// ctx, or 0 outside of Exec.
func Attempt(ctx context.Context) int {
	if attempt, ok := ctx.Value(attemptKey{}).(int); ok {
		return attempt
	}
	return 0
}

// options holds configuration shared by node and flow constructors.
// Options a constructor has no use for are ignored.
type options struct {
	name            string
	maxAttempts     int
	wait            time.Duration
	logger          Logger
	prep            PrepFunc
	post            PostFunc
	skip            SkipPolicy
	aggregateAction string
}

// Option configures a node or a flow.
type Option func(*options)

// WithRetry configures retry behavior: maxAttempts total Exec attempts with
// wait between them. Values below 1 attempt or 0 wait are raised to those.
func WithRetry(maxAttempts int, wait time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.wait = wait
	}
}

// WithMaxAttempts sets the number of Exec attempts.
func WithMaxAttempts(maxAttempts int) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
	}
}

// WithWait sets the delay between Exec attempts.
func WithWait(wait time.Duration) Option {
	return func(o *options) {
		o.wait = wait
	}
}

// WithLogger sets the logger for advisory warnings and debug output.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName names a flow. Nodes take their name as a constructor argument.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPrep sets a flow's own Prep hook. Batch flows ignore it because their
// BatchPrepFunc produces the prep result.
func WithPrep(fn PrepFunc) Option {
	return func(o *options) {
		o.prep = fn
	}
}

// WithPost sets a flow's own Post hook.
func WithPost(fn PostFunc) Option {
	return func(o *options) {
		o.post = fn
	}
}

// WithSkipKeys replaces the parallel batch flow merge skip policy with an
// exact key list. No keys means every key is merged.
func WithSkipKeys(keys ...string) Option {
	return func(o *options) {
		o.skip = SkipKeys(keys...)
	}
}

// WithSkipPolicy sets an arbitrary merge skip predicate.
func WithSkipPolicy(policy SkipPolicy) Option {
	return func(o *options) {
		o.skip = policy
	}
}

// WithAggregateAction changes the action a parallel batch flow follows from
// its start node after merging (ProcessedAction by default).
func WithAggregateAction(action string) Option {
	return func(o *options) {
		o.aggregateAction = action
	}
}

func buildOptions(opts []Option) options {
	o := getDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
