package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenmcp/server-core/internal/agenterrors"
)

func TestCreateThreadAndAppendTurn(t *testing.T) {
	s := New(time.Hour, 20, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hello"}, "")
	assert.NotEmpty(t, id)

	n, err := s.AppendTurn(id, Turn{Role: "assistant", Content: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAppendTurn_UnknownThread(t *testing.T) {
	s := New(time.Hour, 20, 10, nil)
	_, err := s.AppendTurn("nonexistent", Turn{Role: "user", Content: "x"})
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.ThreadUnknown))
}

func TestAppendTurn_ExpiredThread(t *testing.T) {
	s := New(time.Millisecond, 20, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hello"}, "")
	time.Sleep(5 * time.Millisecond)

	_, err := s.AppendTurn(id, Turn{Role: "user", Content: "late"})
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.ThreadExpired))
}

func TestAppendTurn_ThreadFull(t *testing.T) {
	s := New(time.Hour, 1, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hello"}, "")

	_, err := s.AppendTurn(id, Turn{Role: "assistant", Content: "reply"})
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.ThreadFull))
}

func TestReconstruct_UnknownThread(t *testing.T) {
	s := New(time.Hour, 20, 10, nil)
	_, err := s.Reconstruct("nonexistent", 1000)
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.ThreadUnknown))
}

func TestReconstruct_AlwaysKeepsFirstTurnAnchor(t *testing.T) {
	s := New(time.Hour, 100, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "the anchor question that starts everything"}, "")
	for i := 0; i < 10; i++ {
		_, err := s.AppendTurn(id, Turn{Role: "assistant", Content: "short reply"})
		require.NoError(t, err)
	}

	turns, err := s.Reconstruct(id, 5) // tiny budget
	require.NoError(t, err)
	require.NotEmpty(t, turns)
	assert.Equal(t, "the anchor question that starts everything", turns[0].Content,
		"first user turn must always be preserved as an anchor")
}

func TestReconstruct_ReturnsAtLeastMostRecentTurn(t *testing.T) {
	s := New(time.Hour, 100, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "q"}, "")
	_, err := s.AppendTurn(id, Turn{Role: "assistant", Content: "a very long reply that alone exceeds the tiny budget given"})
	require.NoError(t, err)

	turns, err := s.Reconstruct(id, 1)
	require.NoError(t, err)
	require.NotEmpty(t, turns)
	assert.Equal(t, "a very long reply that alone exceeds the tiny budget given", turns[len(turns)-1].Content)
}

func TestReconstruct_ExpiredThread(t *testing.T) {
	s := New(time.Millisecond, 20, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hello"}, "")
	time.Sleep(5 * time.Millisecond)

	_, err := s.Reconstruct(id, 1000)
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.ThreadExpired))
}

func TestFiles_DedupeAcrossTurns(t *testing.T) {
	s := New(time.Hour, 20, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hi", Files: []string{"/a.go", "/b.go/"}}, "")
	_, err := s.AppendTurn(id, Turn{Role: "assistant", Content: "ok", Files: []string{"/b.go", "/c.go"}})
	require.NoError(t, err)

	files, err := s.Files(id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a.go", "/b.go/", "/c.go"}, files,
		"original string is kept on first insertion; only later duplicates are deduped by normalized form")
}

func TestGC_EvictsExpiredThreads(t *testing.T) {
	s := New(time.Millisecond, 20, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hi"}, "")
	time.Sleep(5 * time.Millisecond)

	s.GC(context.Background())

	_, ok := s.lookup(id)
	assert.False(t, ok)
}

func TestGC_KeepsFreshThreads(t *testing.T) {
	s := New(time.Hour, 20, 10, nil)
	id := s.CreateThread("chat", Turn{Role: "user", Content: "hi"}, "")

	s.GC(context.Background())

	_, ok := s.lookup(id)
	assert.True(t, ok)
}
