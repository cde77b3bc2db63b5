package structured

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStream_PartialsThenCollect(t *testing.T) {
	s := NewStream(func(emit func(int) bool) (string, error) {
		for i := 1; i <= 3; i++ {
			if !emit(i) {
				return "", ErrStreamAbandoned
			}
		}
		return "done", nil
	})

	var seen []int
	for p := range s.Partials() {
		seen = append(seen, p)
	}
	assert.Equal(t, []int{1, 2, 3}, seen)

	final, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "done", final)

	// A second range is empty.
	for range s.Partials() {
		t.Fatal("stream yielded after being consumed")
	}
}

func TestStream_CollectWithoutPartials(t *testing.T) {
	s := NewStream(func(emit func(int) bool) (int, error) {
		emit(1)
		return 42, nil
	})
	final, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, 42, final)
}

func TestStream_BreakAbandons(t *testing.T) {
	produced := 0
	s := NewStream(func(emit func(int) bool) (int, error) {
		for i := 0; i < 10; i++ {
			produced++
			if !emit(i) {
				return 0, nil
			}
		}
		return 10, nil
	})
	for p := range s.Partials() {
		if p == 1 {
			break
		}
	}
	assert.Equal(t, 2, produced)
	_, err := s.Collect()
	assert.ErrorIs(t, err, ErrStreamAbandoned)
}

func TestFailed(t *testing.T) {
	boom := errors.New("boom")
	_, err := Failed[int, int](boom).Collect()
	assert.ErrorIs(t, err, boom)
}

func TestCompleteStream_YieldsGrowingPartials(t *testing.T) {
	fake := llmtest.New(func(llm.Request) (string, error) {
		return `{"title":"Check","content":"Look closely","flag":true}`, nil
	})
	fake.ChunkSize = 3

	s := CompleteStream[partialItem, item](context.Background(), fake, Request{Prompt: "go"})
	var contents []string
	for p := range s.Partials() {
		if p.Content != nil {
			contents = append(contents, *p.Content)
		}
	}
	final, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, item{Title: "Check", Content: "Look closely", Flag: true}, final)

	require.NotEmpty(t, contents)
	for i := 1; i < len(contents); i++ {
		assert.GreaterOrEqual(t, len(contents[i]), len(contents[i-1]))
	}
	assert.Equal(t, "Look closely", contents[len(contents)-1])
}

// Each partial must extend the previous one: no replacement characters for
// runes split across chunks, no dropped trailing spaces.
func TestCompleteStream_ByteChunksOnlyGrow(t *testing.T) {
	fake := llmtest.New(llmtest.Text(`{"title":"T","content":"café ok"}`))
	fake.ChunkSize = 1
	fake.SplitBytes = true

	s := CompleteStream[partialItem, item](context.Background(), fake, Request{Prompt: "go"})
	var contents []string
	for p := range s.Partials() {
		if p.Content != nil {
			contents = append(contents, *p.Content)
		}
	}
	final, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "café ok", final.Content)

	require.NotEmpty(t, contents)
	for i, c := range contents {
		assert.True(t, utf8.ValidString(c), "partial %q", c)
		assert.NotContains(t, c, string(utf8.RuneError), "partial %q", c)
		if i > 0 {
			assert.True(t, strings.HasPrefix(c, contents[i-1]), "%q does not extend %q", c, contents[i-1])
		}
	}
	assert.Contains(t, contents, "café ")
	assert.Equal(t, "café ok", contents[len(contents)-1])
}

func TestCompleteStream_BreakCancelsProvider(t *testing.T) {
	fake := llmtest.New(func(llm.Request) (string, error) {
		return `{"title":"A long title that keeps going","content":"and going"}`, nil
	})
	fake.ChunkSize = 2

	s := CompleteStream[partialItem, item](context.Background(), fake, Request{Prompt: "go"})
	for range s.Partials() {
		break
	}
	_, err := s.Collect()
	assert.ErrorIs(t, err, ErrStreamAbandoned)
	assert.Equal(t, 1, fake.Aborted())
}

func TestCompleteStream_ProviderErrorVerbatim(t *testing.T) {
	boom := errors.New("rate limited")
	fake := llmtest.New(func(llm.Request) (string, error) { return "", boom })

	_, err := CompleteStream[partialItem, item](context.Background(), fake, Request{Prompt: "go"}).Collect()
	assert.Same(t, boom, err)
}

func TestComplete_DecodeFailure(t *testing.T) {
	fake := llmtest.New(func(llm.Request) (string, error) { return "no idea", nil })
	_, err := Complete[item](context.Background(), fake, Request{Prompt: "go"})
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestComplete_BuildsMessages(t *testing.T) {
	fake := llmtest.New(func(llm.Request) (string, error) { return `{"score":0.1}`, nil })
	schema := MustSchemaFor[scored]("similarity", "")
	_, err := Complete[scored](context.Background(), fake, Request{
		Instructions: "judge",
		Prompt:       "compare",
		Schema:       schema,
		Temperature:  llm.Float32(0.35),
		MaxTokens:    100,
	})
	require.NoError(t, err)

	calls := fake.CallsFor("similarity")
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, llm.RoleSystem, calls[0].Messages[0].Role)
	assert.Equal(t, "compare", calls[0].Messages[1].Content)
	assert.Equal(t, 100, calls[0].MaxTokens)
}
