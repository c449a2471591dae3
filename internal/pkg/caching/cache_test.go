package caching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string
	Title string
}

func TestUseCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	c := NewLocalOnly(100, time.Minute)

	calls := 0
	load := func() (item, error) {
		calls++
		return item{ID: "m1", Title: "review"}, nil
	}

	v, err := UseCache(ctx, c, "mission:m1", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "review", v.Title)

	v, err = UseCache(ctx, c, "mission:m1", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "m1", v.ID)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Delete(ctx, "mission:m1"))
	_, err = UseCache(ctx, c, "mission:m1", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestUseCacheDoesNotStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := UseCache(ctx, Noop{}, "k", time.Minute, func() (item, error) { return item{}, boom })
	assert.ErrorIs(t, err, boom)
}
