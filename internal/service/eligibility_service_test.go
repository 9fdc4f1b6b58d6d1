package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func refsOf(ids ...uuid.UUID) []session.QuestionRef {
	out := make([]session.QuestionRef, len(ids))
	for i, id := range ids {
		out[i] = session.QuestionRef{ID: id}
	}
	return out
}

func idsOf(refs []session.QuestionRef) []uuid.UUID {
	out := make([]uuid.UUID, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func TestOrderQuestions(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	canonical := refsOf(a, b, c, d)

	tests := []struct {
		name string
		ids  []uuid.UUID
		want []uuid.UUID
	}{
		{name: "full permutation", ids: []uuid.UUID{c, a, d, b}, want: []uuid.UUID{c, a, d, b}},
		{name: "stale id skipped", ids: []uuid.UUID{uuid.New(), b, a, d, c}, want: []uuid.UUID{b, a, d, c}},
		{name: "new question appended", ids: []uuid.UUID{d, b}, want: []uuid.UUID{d, b, a, c}},
		{name: "duplicate id", ids: []uuid.UUID{b, b, a, c, d}, want: []uuid.UUID{b, a, c, d}},
		{name: "empty order", ids: nil, want: []uuid.UUID{a, b, c, d}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, idsOf(orderQuestions(canonical, tt.ids)))
		})
	}
}

func TestShared_CollapsesConcurrentLoads(t *testing.T) {
	var g singleflight.Group
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := shared(&g, "exam:math", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}()
	}

	// Given every caller is parked on the first in-flight load
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}
}

func TestShared_PropagatesError(t *testing.T) {
	var g singleflight.Group
	boom := errors.New("boom")

	v, err := shared(&g, "k", func() (*session.Window, error) { return nil, boom })

	require.ErrorIs(t, err, boom)
	require.Nil(t, v)
}
