package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codestory/pkg/types"
)

func newTask(id string) *types.Task {
	return &types.Task{
		ID:       id,
		FileName: "demo.zip",
		Status:   types.StatusQueued,
	}
}

func TestCreateAndGetSnapshot(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	// mutating the snapshot must not touch the stored task
	got.Status = types.StatusFailed
	again, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, again.Status)
}

func TestCreateDuplicate(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))
	assert.Error(t, s.Create(newTask("t1")))
}

func TestGetUnknown(t *testing.T) {
	s := NewStore(0, nil, nil)
	_, err := s.Get("ghost")
	assert.ErrorIs(t, err, types.ErrUnknownTask)
}

func TestAdvanceMonotonicProgress(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))

	require.NoError(t, s.Advance("t1", types.StatusExtracting, 10, "unpacking"))
	require.NoError(t, s.Advance("t1", types.StatusSummarizing, 5, "summarizing"))

	got, err := s.Get("t1")
	require.NoError(t, err)
	// progress never decreases even when a later update reports less
	assert.Equal(t, 10, got.Progress)
	assert.Equal(t, types.StatusSummarizing, got.Status)
}

func TestAdvanceRejectsStatusRegression(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))
	require.NoError(t, s.Advance("t1", types.StatusIndexing, 70, ""))

	err := s.Advance("t1", types.StatusExtracting, 80, "")
	assert.Error(t, err)
}

func TestFailedTaskIsFrozen(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))
	require.NoError(t, s.Fail("t1", types.ErrorRecord{
		Stage: types.StageSummarize, Reason: "generation failed",
	}))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, types.StageSummarize, got.Error.Stage)

	// no resurrection
	err = s.Advance("t1", types.StatusReady, 100, "")
	assert.ErrorIs(t, err, types.ErrTaskTerminal)
	err = s.Fail("t1", types.ErrorRecord{Stage: types.StageIndex, Reason: "again"})
	assert.ErrorIs(t, err, types.ErrTaskTerminal)
}

func TestTreeLifecycle(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))

	_, err := s.Tree("t1")
	assert.ErrorIs(t, err, types.ErrNotReady)

	tree := &types.FileNode{
		Name: "demo", Kind: types.NodeFolder,
		Children: []*types.FileNode{
			{Name: "main.py", Path: "main.py", Kind: types.NodeFile},
			{Name: "util.py", Path: "util.py", Kind: types.NodeFile},
		},
	}
	require.NoError(t, s.SetTree("t1", tree))

	got, err := s.Tree("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.FileCount())

	task, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, task.FileCount)
}

func TestCancelInvokesCancelFunc(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))

	ctx, cancel := context.WithCancel(context.Background())
	s.SetCancel("t1", cancel)

	require.NoError(t, s.Cancel("t1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestCancelTerminalTask(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))
	require.NoError(t, s.Fail("t1", types.ErrorRecord{Stage: types.StageExtract, Reason: "bad zip"}))

	assert.ErrorIs(t, s.Cancel("t1"), types.ErrTaskTerminal)
}

func TestArtifactCacheKeyedByKindAndParams(t *testing.T) {
	s := NewStore(0, nil, nil)
	require.NoError(t, s.Create(newTask("t1")))

	glossary := &types.Artifact{Kind: types.ArtifactGlossary, Glossary: &types.Glossary{
		Terms: []types.TermEntry{{Term: "cache", PlainExplanation: "a fast copy"}},
	}}
	require.NoError(t, s.PutArtifact("t1", types.ArtifactGlossary, "h1", glossary))

	got, ok := s.GetArtifact("t1", types.ArtifactGlossary, "h1")
	require.True(t, ok)
	assert.Equal(t, glossary, got)

	// different params miss
	_, ok = s.GetArtifact("t1", types.ArtifactGlossary, "h2")
	assert.False(t, ok)
	// different kind misses
	_, ok = s.GetArtifact("t1", types.ArtifactChatScript, "h1")
	assert.False(t, ok)
}

func TestHistoryNewestFirst(t *testing.T) {
	s := NewStore(0, nil, nil)

	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		tk := newTask(id)
		tk.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Create(tk))
	}

	all := s.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	limited := s.History(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "new", limited[0].ID)
}

func TestSweepEvictsExpiredTasks(t *testing.T) {
	var evicted []string
	s := NewStore(time.Hour, nil, func(id string) {
		evicted = append(evicted, id)
	})

	fresh := newTask("fresh")
	require.NoError(t, s.Create(fresh))

	stale := newTask("stale")
	stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, s.Create(stale))

	ctx, cancel := context.WithCancel(context.Background())
	s.SetCancel("stale", cancel)

	ids := s.Sweep(time.Now().UTC())
	assert.Equal(t, []string{"stale"}, ids)
	assert.Equal(t, []string{"stale"}, evicted)
	assert.Equal(t, 1, s.Len())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	_, err := s.Get("stale")
	assert.ErrorIs(t, err, types.ErrUnknownTask)
}
