package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormatsComponentMethodAction(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := WrapTransient(base, "Client", "Connect", "connect to NATS")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Client.Connect")
	assert.Contains(t, err.Error(), "connect to NATS")
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "C", "M", "a"))
	assert.Nil(t, WrapTransient(nil, "C", "M", "a"))
	assert.Nil(t, WrapInvalid(nil, "C", "M", "a"))
	assert.Nil(t, WrapFatal(nil, "C", "M", "a"))
}

func TestClassification(t *testing.T) {
	transient := WrapTransient(fmt.Errorf("timeout"), "C", "M", "a")
	invalid := WrapInvalid(fmt.Errorf("bad input"), "C", "M", "a")
	fatal := WrapFatal(fmt.Errorf("store down"), "C", "M", "a")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(invalid))
	assert.False(t, IsTransient(fatal))

	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsInvalid(transient))

	assert.True(t, IsFatal(fatal))
	assert.False(t, IsFatal(transient))

	assert.Equal(t, ErrorTransient, Classify(transient))
	assert.Equal(t, ErrorInvalid, Classify(invalid))
	assert.Equal(t, ErrorFatal, Classify(fatal))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := WrapInvalid(fmt.Errorf("unknown category"), "Evaluator", "Evaluate", "check category")
	outer := fmt.Errorf("rule r1: %w", inner)

	assert.True(t, IsInvalid(outer))
	assert.Equal(t, ErrorInvalid, Classify(outer))
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", ErrAuditUnavailable)))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", ErrStoreUnavailable)))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrInvalidRule)))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrUnknownOperator)))
}

func TestUnclassifiedDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("some network thing")))
	assert.True(t, IsTransient(fmt.Errorf("some network thing")))
}

func TestClassifyNil(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))
}
