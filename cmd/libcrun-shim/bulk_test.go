package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanOutRunsEveryID(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	err := fanOut(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, id string) error {
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestFanOutReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")

	err := fanOut(context.Background(), []string{"a", "b"}, func(ctx context.Context, id string) error {
		if id == "b" {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
}
