package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codestory/internal/llm"
	"codestory/pkg/types"
)

// mockGenerator answers every batch with a summary per requested path.
type mockGenerator struct {
	mu      sync.Mutex
	calls   atomic.Int32
	fail    bool
	garbage bool
	prompts []string
}

func (m *mockGenerator) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	m.mu.Unlock()

	if m.fail {
		return "", errors.New("provider down")
	}
	if m.garbage {
		return "sorry, I cannot help with that", nil
	}

	var infos []struct {
		Path string `json:"path"`
	}
	start := 0
	for i, c := range req.Prompt {
		if c == '[' {
			start = i
			break
		}
	}
	if err := json.Unmarshal([]byte(req.Prompt[start:]), &infos); err != nil {
		return "", err
	}

	out := map[string]string{}
	for _, info := range infos {
		out[info.Path] = "summary of " + info.Path
	}
	payload, _ := json.Marshal(out)
	return string(payload), nil
}

func (m *mockGenerator) Model() string { return "mock" }
func (m *mockGenerator) Close() error  { return nil }

func makeDigests(n int) []*types.Digest {
	digests := make([]*types.Digest, n)
	for i := range digests {
		digests[i] = &types.Digest{
			Path:     fmt.Sprintf("src/file%02d.py", i),
			Language: "python",
			Preview:  "def handler(): pass",
		}
	}
	return digests
}

func TestSummarizeAppliesResponses(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil)

	digests := makeDigests(3)
	require.NoError(t, s.Summarize(context.Background(), digests, nil))

	for _, d := range digests {
		assert.Equal(t, "summary of "+d.Path, d.Summary)
	}
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestSummarizeBatchesByFileCount(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil, WithBatchLimits(5, DefaultBatchBudget), WithWorkers(1))

	digests := makeDigests(12)
	require.NoError(t, s.Summarize(context.Background(), digests, nil))

	assert.Equal(t, int32(3), gen.calls.Load()) // 5 + 5 + 2
	for _, d := range digests {
		assert.NotEmpty(t, d.Summary)
	}
}

func TestSummarizeBatchesByByteBudget(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil, WithBatchLimits(100, 50), WithWorkers(1))

	// each digest costs well over the 50-byte budget
	digests := makeDigests(4)
	require.NoError(t, s.Summarize(context.Background(), digests, nil))

	assert.Equal(t, int32(4), gen.calls.Load())
}

func TestSummarizeProgressIsCumulative(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil, WithBatchLimits(4, DefaultBatchBudget), WithWorkers(1))

	var reports []int
	digests := makeDigests(10)
	require.NoError(t, s.Summarize(context.Background(), digests, func(done int) {
		reports = append(reports, done)
	}))

	require.NotEmpty(t, reports)
	assert.Equal(t, 10, reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}
}

func TestSummarizeFallsBackOnProviderFailure(t *testing.T) {
	gen := &mockGenerator{fail: true}
	s := New(gen, nil)

	digests := []*types.Digest{{
		Path: "app/models.py", Language: "python",
		Symbols: []string{"User", "Order"}, Comment: "Data models",
	}}
	require.NoError(t, s.Summarize(context.Background(), digests, nil))

	assert.Contains(t, digests[0].Summary, "Python source file")
	assert.Contains(t, digests[0].Summary, "User")
}

func TestSummarizeFallsBackOnGarbageResponse(t *testing.T) {
	gen := &mockGenerator{garbage: true}
	s := New(gen, nil)

	digests := makeDigests(2)
	require.NoError(t, s.Summarize(context.Background(), digests, nil))

	for _, d := range digests {
		assert.NotEmpty(t, d.Summary)
		assert.NotContains(t, d.Summary, "summary of")
	}
}

func TestSummarizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &mockGenerator{}
	s := New(gen, nil)

	err := s.Summarize(ctx, makeDigests(5), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarizeEmptyInput(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil)
	require.NoError(t, s.Summarize(context.Background(), nil, nil))
	assert.Zero(t, gen.calls.Load())
}

func TestFallbackSummaryShapes(t *testing.T) {
	assert.Contains(t, FallbackSummary(&types.Digest{Language: "config", Path: "a.yaml"}), "Configuration file")
	assert.Contains(t, FallbackSummary(&types.Digest{Language: "doc", Path: "a.md"}), "Documentation file")
	assert.Contains(t, FallbackSummary(&types.Digest{Path: "x"}), "Source file")

	long := FallbackSummary(&types.Digest{
		Language: "go",
		Symbols:  []string{"A", "B", "C", "D", "E", "F", "G"},
	})
	assert.Contains(t, long, "A, B, C, D, E")
	assert.NotContains(t, long, "F")
}
