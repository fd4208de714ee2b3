// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_PutGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cfn/e1/p1/s1/loop_state", []byte(`{"loop3Iter":1}`), 0))

	got, err := s.Get(ctx, "cfn/e1/p1/s1/loop_state")
	require.NoError(t, err)
	assert.Equal(t, `{"loop3Iter":1}`, string(got))
}

func TestInMemoryStore_GetMissingReturnsErrNotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get(context.Background(), "cfn/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cfn/e1/p1/s1/ack", []byte("x"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := s.Get(ctx, "cfn/e1/p1/s1/ack")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_SearchGlob(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cfn/e1/p1/s1/loop_state", []byte("a"), 0))
	require.NoError(t, s.Put(ctx, "cfn/e1/p1/s2/loop_state", []byte("b"), 0))
	require.NoError(t, s.Put(ctx, "cfn/e1/p2/s1/loop_state", []byte("c"), 0))

	results, err := s.Search(ctx, "cfn/e1/p1/*/loop_state")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, results, "cfn/e1/p1/s1/loop_state")
	assert.Contains(t, results, "cfn/e1/p1/s2/loop_state")
	assert.NotContains(t, results, "cfn/e1/p2/s1/loop_state")
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cfn/e1/p1/s1/loop_state", []byte("a"), 0))
	require.NoError(t, s.Delete(ctx, "cfn/e1/p1/s1/loop_state"))

	_, err := s.Get(ctx, "cfn/e1/p1/s1/loop_state")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting an absent key is not an error
	assert.NoError(t, s.Delete(ctx, "cfn/does/not/exist"))
}

func TestInMemoryStore_CleanupExpired(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cfn/a", []byte("1"), 5*time.Millisecond))
	require.NoError(t, s.Put(ctx, "cfn/b", []byte("2"), 0))
	time.Sleep(15 * time.Millisecond)

	removed := s.CleanupExpired()
	assert.Equal(t, 1, removed)

	_, err := s.Get(ctx, "cfn/b")
	assert.NoError(t, err)
}
