package pocketflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/pocketflow"
)

func TestSetDefaults(t *testing.T) {
	t.Cleanup(pocketflow.ResetDefaults)

	logger := &recordingLogger{}
	pocketflow.SetDefaults(
		pocketflow.WithMaxAttempts(3),
		pocketflow.WithLogger(logger),
		pocketflow.WithName("ignored"),
	)

	attempts := 0
	flaky := pocketflow.NewNode("flaky", pocketflow.Steps{
		Exec: func(ctx context.Context, params pocketflow.Params, _ any) (any, error) {
			attempts++
			return nil, errors.New("always")
		},
	})

	_, err := flaky.Run(context.Background(), pocketflow.Shared{})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, logger.messages("debug"), 2)

	flow := pocketflow.NewFlow(flaky)
	assert.Equal(t, "flow-flaky", flow.Name())

	t.Run("explicit options win", func(t *testing.T) {
		attempts = 0
		once := pocketflow.NewNode("once", pocketflow.Steps{
			Exec: func(ctx context.Context, params pocketflow.Params, _ any) (any, error) {
				attempts++
				return nil, errors.New("always")
			},
		}, pocketflow.WithMaxAttempts(1))

		_, err := once.Run(context.Background(), pocketflow.Shared{})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestResetDefaults(t *testing.T) {
	pocketflow.SetDefaults(pocketflow.WithMaxAttempts(5))
	pocketflow.ResetDefaults()

	attempts := 0
	node := pocketflow.NewNode("node", pocketflow.Steps{
		Exec: func(ctx context.Context, params pocketflow.Params, _ any) (any, error) {
			attempts++
			return nil, errors.New("always")
		},
	}, pocketflow.WithLogger(pocketflow.NopLogger()))

	_, err := node.Run(context.Background(), pocketflow.Shared{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
