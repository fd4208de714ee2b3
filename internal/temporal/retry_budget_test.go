// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryBudget_CanIterateWithinCap(t *testing.T) {
	rb := NewRetryBudget(3, 3)
	assert.True(t, rb.CanIterate(Loop3))
	rb.Increment(Loop3)
	rb.Increment(Loop3)
	rb.Increment(Loop3)
	assert.False(t, rb.CanIterate(Loop3))
	assert.True(t, rb.IsExhausted(Loop3))
}

func TestRetryBudget_LoopsAreIndependent(t *testing.T) {
	rb := NewRetryBudget(1, 5)
	rb.Increment(Loop3)
	assert.True(t, rb.IsExhausted(Loop3))
	assert.False(t, rb.IsExhausted(Loop2))
}

func TestRetryBudget_ResetLoop3(t *testing.T) {
	rb := NewRetryBudget(2, 2)
	rb.Increment(Loop3)
	rb.Increment(Loop3)
	assert.True(t, rb.IsExhausted(Loop3))

	rb.ResetLoop3()
	assert.False(t, rb.IsExhausted(Loop3))
}

func TestRetryBudget_ExtendOnceIsSingleShot(t *testing.T) {
	rb := NewRetryBudget(2, 2)
	rb.Increment(Loop2)
	rb.Increment(Loop2)
	assert.True(t, rb.IsExhausted(Loop2))

	assert.True(t, rb.ExtendOnce(3))
	assert.False(t, rb.IsExhausted(Loop2))

	rb.Increment(Loop2)
	rb.Increment(Loop2)
	rb.Increment(Loop2)
	assert.True(t, rb.IsExhausted(Loop2))

	assert.False(t, rb.ExtendOnce(3), "a second extension must be refused")
}
