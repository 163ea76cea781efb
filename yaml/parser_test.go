package yaml_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/pocketflow/yaml"
)

const fullDocument = `
name: chunked-sum
description: sums chunks in parallel
kind: parallel_batch_flow
params:
  chunk_size: 10
batches_from: chunks
skip_keys: [raw]
aggregate_action: reduce
start: summer
nodes:
  - name: summer
    type: sum
    mode: parallel
    retry:
      max_attempts: 3
      wait: 10ms
    config:
      input: numbers
  - name: reducer
    type: sum
connections:
  - from: summer
    to: reducer
    action: reduce
`

func TestParse(t *testing.T) {
	def, err := yaml.ParseString(fullDocument)
	require.NoError(t, err)

	assert.Equal(t, "chunked-sum", def.Name)
	assert.Equal(t, yaml.KindParallelBatchFlow, def.FlowKind())
	assert.Equal(t, "chunks", def.BatchesFrom)
	require.NotNil(t, def.SkipKeys)
	assert.Equal(t, []string{"raw"}, *def.SkipKeys)
	assert.Equal(t, "reduce", def.AggregateAction)
	assert.Equal(t, "summer", def.Start)
	assert.Contains(t, def.Params, "chunk_size")

	require.Len(t, def.Nodes, 2)
	summer := def.Nodes[0]
	assert.Equal(t, yaml.ModeParallel, summer.Mode)
	require.NotNil(t, summer.Retry)
	assert.Equal(t, 3, summer.Retry.MaxAttempts)
	wait, err := summer.Retry.WaitDuration()
	require.NoError(t, err)
	assert.Equal(t, "10ms", wait.String())
	assert.Equal(t, "numbers", summer.Config["input"])

	require.Len(t, def.Connections, 1)
	assert.Equal(t, yaml.Connection{From: "summer", To: "reducer", Action: "reduce"}, def.Connections[0])

	require.NoError(t, def.Validate())
}

func TestParseSkipKeysPresence(t *testing.T) {
	absent, err := yaml.ParseString("start: a\nnodes: [{name: a, type: t}]\n")
	require.NoError(t, err)
	assert.Nil(t, absent.SkipKeys)
	assert.Equal(t, yaml.KindFlow, absent.FlowKind())

	empty, err := yaml.ParseString("start: a\nskip_keys: []\nnodes: [{name: a, type: t}]\n")
	require.NoError(t, err)
	require.NotNil(t, empty.SkipKeys)
	assert.Empty(t, *empty.SkipKeys)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty document", doc: ""},
		{name: "missing start", doc: "nodes: [{name: a, type: t}]\n"},
		{name: "no nodes", doc: "start: a\nnodes: []\n"},
		{name: "unknown field", doc: "start: a\nfoo: 1\nnodes: [{name: a, type: t}]\n"},
		{name: "node without type", doc: "start: a\nnodes: [{name: a}]\n"},
		{name: "unknown mode", doc: "start: a\nnodes: [{name: a, type: t, mode: turbo}]\n"},
		{name: "unknown kind", doc: "kind: dag\nstart: a\nnodes: [{name: a, type: t}]\n"},
		{name: "zero attempts", doc: "start: a\nnodes: [{name: a, type: t, retry: {max_attempts: 0}}]\n"},
		{name: "bad wait", doc: "start: a\nnodes: [{name: a, type: t, retry: {max_attempts: 2, wait: soon}}]\n"},
		{name: "bad timeout", doc: "start: a\nnodes: [{name: a, type: t, timeout: 5}]\n"},
		{name: "connection without target", doc: "start: a\nnodes: [{name: a, type: t}]\nconnections: [{from: a}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := yaml.ParseString(tt.doc)
			require.ErrorIs(t, err, yaml.ErrInvalidDefinition)
		})
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := yaml.ParseString("start: [unclosed\n")
	require.Error(t, err)
}

func TestValidateReferences(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown start",
			doc:  "start: ghost\nnodes: [{name: a, type: t}]\n",
			want: "start node ghost not found",
		},
		{
			name: "unknown connection source",
			doc:  "start: a\nnodes: [{name: a, type: t}]\nconnections: [{from: x, to: a}]\n",
			want: "connection from node x not found",
		},
		{
			name: "unknown connection target",
			doc:  "start: a\nnodes: [{name: a, type: t}]\nconnections: [{from: a, to: y}]\n",
			want: "connection to node y not found",
		},
		{
			name: "duplicate node",
			doc:  "start: a\nnodes: [{name: a, type: t}, {name: a, type: t}]\n",
			want: "duplicate node a",
		},
		{
			name: "batches on a plain flow",
			doc:  "start: a\nbatches: [{n: 1}]\nnodes: [{name: a, type: t}]\n",
			want: "batches require kind",
		},
		{
			name: "both batch sources",
			doc:  "kind: batch_flow\nstart: a\nbatches: [{n: 1}]\nbatches_from: items\nnodes: [{name: a, type: t}]\n",
			want: "exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := yaml.ParseString(tt.doc)
			require.NoError(t, err)

			err = def.Validate()
			require.ErrorIs(t, err, yaml.ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDocument), 0o600))

	def, err := yaml.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "chunked-sum", def.Name)

	_, err = yaml.ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	def, err := yaml.ParseString(fullDocument)
	require.NoError(t, err)

	data, err := yaml.Marshal(def)
	require.NoError(t, err)

	again, err := yaml.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, def.Start, again.Start)
	assert.Equal(t, def.Connections, again.Connections)
	assert.Equal(t, *def.SkipKeys, *again.SkipKeys)
}

func TestSchemaIsJSON(t *testing.T) {
	assert.Contains(t, string(yaml.Schema()), `"$schema"`)
}
