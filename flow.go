package pocketflow

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchPrepFunc returns the parameter sets a batch flow runs over.
type BatchPrepFunc func(ctx context.Context, params Params, shared Shared) ([]Params, error)

type flowKind int

const (
	kindFlow flowKind = iota
	kindBatch
	kindParallelBatch
)

// Flow orchestrates a graph of nodes from a start node. A Flow is itself a
// Node, so flows nest.
type Flow struct {
	core
	start Node
	kind  flowKind

	prep      PrepFunc
	batchPrep BatchPrepFunc
	post      PostFunc

	skip            SkipPolicy
	aggregateAction string
}

// NewFlow creates a flow that walks the graph from start, following the
// action each node's Post returns until no successor matches.
func NewFlow(start Node, opts ...Option) *Flow {
	return newFlow(start, kindFlow, nil, opts)
}

// NewBatchFlow creates a flow that runs the whole graph once per parameter
// set returned by prep, sequentially, against the same shared context. Each
// set is merged over the flow's own params. prep takes the place of WithPrep,
// which is ignored.
func NewBatchFlow(start Node, prep BatchPrepFunc, opts ...Option) *Flow {
	return newFlow(start, kindBatch, prep, opts)
}

// NewParallelBatchFlow creates a flow that runs only the start node once per
// parameter set, concurrently, each against an isolated copy of the shared
// context. The copies are merged back (see Shared.Merge and WithSkipKeys) in
// the order the sets were returned, then traversal continues from the start
// node's successor for the aggregate action (ProcessedAction by default).
// As with NewBatchFlow, WithPrep is ignored.
func NewParallelBatchFlow(start Node, prep BatchPrepFunc, opts ...Option) *Flow {
	return newFlow(start, kindParallelBatch, prep, opts)
}

func newFlow(start Node, kind flowKind, batchPrep BatchPrepFunc, opts []Option) *Flow {
	o := buildOptions(opts)

	name := o.name
	if name == "" {
		name = "flow"
		if start != nil {
			name = "flow-" + start.Name()
		}
	}

	skip := o.skip
	if skip == nil {
		skip = DefaultSkipPolicy
	}
	aggregateAction := o.aggregateAction
	if aggregateAction == "" {
		aggregateAction = ProcessedAction
	}

	f := &Flow{
		core:            newCore(name, o.logger),
		start:           start,
		kind:            kind,
		prep:            o.prep,
		batchPrep:       batchPrep,
		post:            o.post,
		skip:            skip,
		aggregateAction: aggregateAction,
	}
	if kind != kindFlow && o.prep != nil {
		f.logger.Warn(context.Background(), "batch flow ignores WithPrep, its batch prep supplies the params", "flow", name)
	}
	return f
}

// Start returns the flow's start node.
func (f *Flow) Start() Node {
	return f.start
}

// SetParams replaces the flow's parameter set. It is applied to every node
// the flow visits.
func (f *Flow) SetParams(params Params) Node {
	f.setParams(params)
	return f
}

// On adds a successor for when the flow is used as a node.
func (f *Flow) On(action string, next Node) Node {
	f.connect(action, next)
	return f
}

// Next adds a successor for the default action.
func (f *Flow) Next(next Node) Node {
	f.connect(DefaultAction, next)
	return next
}

// Prep runs the flow's own Prep hook. For batch flows the result is the
// []Params the batch runs over.
func (f *Flow) Prep(ctx context.Context, shared Shared) (any, error) {
	if f.kind != kindFlow {
		return f.batchParams(ctx, shared)
	}
	if f.prep == nil {
		return nil, nil
	}
	return f.prep(ctx, f.params, shared)
}

// Exec always fails: a flow's work is the traversal itself.
func (f *Flow) Exec(ctx context.Context, prepResult any) (any, error) {
	return nil, ErrFlowExec
}

// Post runs the flow's own Post hook. execResult is always nil.
func (f *Flow) Post(ctx context.Context, shared Shared, prepResult, execResult any) (string, error) {
	if f.post == nil {
		return DefaultAction, nil
	}
	return f.post(ctx, f.params, shared, prepResult, execResult)
}

// Run executes the flow and returns the action of its own Post.
func (f *Flow) Run(ctx context.Context, shared Shared) (string, error) {
	f.warnIfSuccessors(ctx)
	if RunID(ctx) == "" {
		ctx = WithRunID(ctx, uuid.NewString())
	}

	f.logger.Debug(ctx, "flow starting", "flow", f.name, "run_id", RunID(ctx))
	action, err := f.lifecycle(ctx, shared)
	if err != nil {
		f.logger.Error(ctx, "flow failed", "flow", f.name, "run_id", RunID(ctx), "error", err)
		return "", fmt.Errorf("flow %s: %w", f.name, err)
	}
	f.logger.Debug(ctx, "flow completed", "flow", f.name, "run_id", RunID(ctx), "action", action)
	return action, nil
}

func (f *Flow) lifecycle(ctx context.Context, shared Shared) (string, error) {
	switch f.kind {
	case kindBatch:
		return f.runBatch(ctx, shared)
	case kindParallelBatch:
		return f.runParallelBatch(ctx, shared)
	}

	prepResult, err := f.Prep(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("prep: %w", err)
	}
	if _, err := f.orchestrate(ctx, shared, nil); err != nil {
		return "", err
	}
	return f.finish(ctx, shared, prepResult)
}

// orchestrate walks the graph from a clone of the start node. params nil
// means the flow's own params.
func (f *Flow) orchestrate(ctx context.Context, shared Shared, params Params) (string, error) {
	if f.start == nil {
		return "", ErrNoStartNode
	}
	if params == nil {
		params = f.params
	}
	return f.traverse(ctx, shared, f.start.clone(), params)
}

// traverse runs current and its successors until an action has no matching
// edge. Every visited node is a fresh clone of its template, so templates
// never carry per-run state.
func (f *Flow) traverse(ctx context.Context, shared Shared, current Node, params Params) (string, error) {
	var action string
	for current != nil {
		current.SetParams(params)

		f.logger.Debug(ctx, "executing node", "flow", f.name, "node", current.Name(), "run_id", RunID(ctx))
		next, err := current.lifecycle(ctx, shared)
		if err != nil {
			return "", fmt.Errorf("node %s: %w", current.Name(), err)
		}
		action = next

		successor := successorFor(current, action)
		if successor == nil {
			if len(current.Successors()) > 0 {
				f.logger.Debug(ctx, "no successor for action, flow ends",
					"flow", f.name,
					"node", current.Name(),
					"action", action)
			}
			break
		}
		current = successor.clone()
	}
	return action, nil
}

func (f *Flow) finish(ctx context.Context, shared Shared, prepResult any) (string, error) {
	action, err := f.Post(ctx, shared, prepResult, nil)
	if err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	return normalizeAction(action), nil
}

func (f *Flow) batchParams(ctx context.Context, shared Shared) ([]Params, error) {
	if f.batchPrep == nil {
		return []Params{}, nil
	}
	batches, err := f.batchPrep(ctx, f.params, shared)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []Params{}
	}
	return batches, nil
}

func (f *Flow) runBatch(ctx context.Context, shared Shared) (string, error) {
	batches, err := f.batchParams(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("prep: %w", err)
	}

	for i, bp := range batches {
		if _, err := f.orchestrate(ctx, shared, mergeParams(f.params, bp)); err != nil {
			return "", fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return f.finish(ctx, shared, batches)
}

func (f *Flow) runParallelBatch(ctx context.Context, shared Shared) (string, error) {
	batches, err := f.batchParams(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("prep: %w", err)
	}
	if len(batches) == 0 {
		return f.finish(ctx, shared, batches)
	}
	if f.start == nil {
		return "", ErrNoStartNode
	}

	// One slot per worker so the merge below follows scheduling order.
	locals := make([]Shared, len(batches))
	var g errgroup.Group
	for i, bp := range batches {
		worker := f.start.clone()
		worker.SetParams(mergeParams(f.params, bp))
		local := shared.Isolate()

		g.Go(func() error {
			if _, err := worker.lifecycle(ctx, local); err != nil {
				return fmt.Errorf("batch %d: node %s: %w", i, worker.Name(), err)
			}
			locals[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	for _, local := range locals {
		shared.Merge(local, f.skip)
	}

	if len(f.start.Successors()) > 0 {
		if next := successorFor(f.start, f.aggregateAction); next != nil {
			if _, err := f.traverse(ctx, shared, next.clone(), f.params); err != nil {
				return "", err
			}
		}
	}
	return f.finish(ctx, shared, batches)
}

func (f *Flow) clone() Node {
	cp := *f
	cp.core = f.copyCore()
	return &cp
}

// mergeParams returns base overlaid with override; override wins.
func mergeParams(base, override Params) Params {
	merged := make(Params, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)
	return merged
}

type runIDKey struct{}

// WithRunID tags ctx with a run identifier used in log lines. Flow.Run
// generates one when ctx has none.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run identifier carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Builder assembles a graph from named nodes.
type Builder struct {
	nodes map[string]Node
	start Node
	opts  []Option
	errs  []error
}

// NewBuilder creates a new graph builder. opts are passed to the flow Build
// creates.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{
		nodes: make(map[string]Node),
		opts:  opts,
	}
}

// Add registers a node. The first node added is the start node unless Start
// says otherwise.
func (b *Builder) Add(node Node) *Builder {
	if _, exists := b.nodes[node.Name()]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", node.Name()))
		return b
	}
	b.nodes[node.Name()] = node
	if b.start == nil {
		b.start = node
	}
	return b
}

// Start sets the starting node.
func (b *Builder) Start(name string) *Builder {
	node, ok := b.nodes[name]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: start %q", ErrNodeNotFound, name))
		return b
	}
	b.start = node
	return b
}

// Connect creates an edge from one named node to another.
func (b *Builder) Connect(from, action, to string) *Builder {
	fromNode, ok := b.nodes[from]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: connection from %q", ErrNodeNotFound, from))
		return b
	}
	toNode, ok := b.nodes[to]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: connection to %q", ErrNodeNotFound, to))
		return b
	}

	fromNode.On(action, toNode)
	return b
}

// Node returns a registered node by name.
func (b *Builder) Node(name string) (Node, bool) {
	node, ok := b.nodes[name]
	return node, ok
}

// Root returns the start node, or every error recorded while building.
func (b *Builder) Root() (Node, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.start == nil {
		return nil, ErrNoStartNode
	}
	return b.start, nil
}

// Build creates a plain flow from the start node.
func (b *Builder) Build() (*Flow, error) {
	start, err := b.Root()
	if err != nil {
		return nil, err
	}
	return NewFlow(start, b.opts...), nil
}

var _ Node = (*Flow)(nil)
