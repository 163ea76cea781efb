package pocketflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/pocketflow"
)

func TestBuilder(t *testing.T) {
	t.Run("builds a routed flow", func(t *testing.T) {
		flow, err := pocketflow.NewBuilder().
			Add(numberNode(1)).
			Add(arithmeticNode("double", func(v int) int { return v * 2 })).
			Connect("number", pocketflow.DefaultAction, "double").
			Start("number").
			Build()
		require.NoError(t, err)

		shared := pocketflow.Shared{}
		_, err = flow.Run(context.Background(), shared)
		require.NoError(t, err)
		assert.Equal(t, 2, shared["current"])
	})

	t.Run("reports unknown nodes", func(t *testing.T) {
		_, err := pocketflow.NewBuilder().
			Add(numberNode(1)).
			Connect("number", pocketflow.DefaultAction, "missing").
			Start("ghost").
			Build()

		require.ErrorIs(t, err, pocketflow.ErrNodeNotFound)
		assert.Contains(t, err.Error(), "missing")
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("empty builder", func(t *testing.T) {
		_, err := pocketflow.NewBuilder().Build()
		require.ErrorIs(t, err, pocketflow.ErrNoStartNode)
	})
}

func TestBuilderDuplicateAndLookup(t *testing.T) {
	b := pocketflow.NewBuilder().
		Add(setKey("a", "k", 1, pocketflow.DefaultAction)).
		Add(setKey("a", "k", 2, pocketflow.DefaultAction))

	node, ok := b.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a", node.Name())

	_, ok = b.Node("b")
	assert.False(t, ok)

	_, err := b.Root()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate node "a"`)
}

func TestBuilderPassesFlowOptions(t *testing.T) {
	flow, err := pocketflow.NewBuilder(pocketflow.WithName("built")).
		Add(setKey("only", "done", true, pocketflow.DefaultAction)).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "built", flow.Name())
	assert.Equal(t, "only", flow.Start().Name())
}
