package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codestory/pkg/types"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(t.TempDir(), zap.NewNop())
}

func TestExtractRoundTrip(t *testing.T) {
	entries := map[string]string{
		"app/main.py":      "print('hello')\n",
		"app/util/io.py":   "def read(): pass\n",
		"README.md":        "# demo\n",
		"config/ci.yaml":   "jobs: []\n",
		".env":             "API_KEY=secret\n",
		"node_modules/x.js": "module.exports = 1\n",
	}
	e := newTestExtractor(t)

	root, err := e.Extract("task-1", "demo.zip", buildZip(t, entries))
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "demo", root.Name)
	assert.Equal(t, types.NodeFolder, root.Kind)

	got := root.FilePaths()
	assert.Len(t, got, len(entries))
	for name := range entries {
		assert.Contains(t, got, name)
	}
	assert.Equal(t, len(entries), root.FileCount())
}

func TestExtractLazyContent(t *testing.T) {
	e := newTestExtractor(t)
	root, err := e.Extract("task-2", "src.zip", buildZip(t, map[string]string{
		"main.go": "package main\n",
	}))
	require.NoError(t, err)

	files := root.Files()
	require.Len(t, files, 1)

	rc, err := files[0].Open()
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
	assert.Equal(t, int64(len(data)), files[0].Size)
}

func TestExtractPathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"..",
		"/etc/shadow",
	}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			e := newTestExtractor(t)
			_, err := e.Extract("task-3", "evil.zip", buildZip(t, map[string]string{
				name:      "owned",
				"safe.txt": "ok",
			}))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrPathTraversal)

			// nothing is left behind once an entry is rejected
			_, statErr := os.Stat(e.TaskDir("task-3"))
			assert.True(t, errors.Is(statErr, os.ErrNotExist))
		})
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	e := newTestExtractor(t)
	_, err := e.Extract("task-4", "bad.zip", []byte("this is not a zip file"))
	assert.ErrorIs(t, err, types.ErrCorruptArchive)
}

func TestExtractEmptyInputs(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract("task-5", "empty.zip", nil)
	assert.ErrorIs(t, err, types.ErrEmptyUpload)

	// valid container with only directory entries
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err = w.Create("just-a-dir/")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = e.Extract("task-6", "dirs.zip", buf.Bytes())
	assert.ErrorIs(t, err, types.ErrEmptyArchive)
}

func TestExtractFolderOrderPreserved(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"b/second.txt", "a/first.txt", "top.txt"} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	e := newTestExtractor(t)
	root, err := e.Extract("task-7", "ordered.zip", buf.Bytes())
	require.NoError(t, err)

	require.Len(t, root.Children, 3)
	assert.Equal(t, "b", root.Children[0].Name)
	assert.Equal(t, "a", root.Children[1].Name)
	assert.Equal(t, "top.txt", root.Children[2].Name)
}

func TestExtractDuplicateEntryPaths(t *testing.T) {
	// appending to a zip can repeat a path; the later entry wins
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, content := range []string{"first version", "second version"} {
		f, err := w.Create("app/main.py")
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	e := newTestExtractor(t)
	root, err := e.Extract("task-dup", "dup.zip", buf.Bytes())
	require.NoError(t, err)

	files := root.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "app/main.py", files[0].Path)
	assert.Equal(t, int64(len("second version")), files[0].Size)

	rc, err := files[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "second version", string(content))

	paths, err := EntryPaths(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"app/main.py"}, paths)
}

func TestCleanupRemovesTaskDir(t *testing.T) {
	e := newTestExtractor(t)
	_, err := e.Extract("task-8", "x.zip", buildZip(t, map[string]string{"f.txt": "x"}))
	require.NoError(t, err)

	dir := e.TaskDir("task-8")
	_, err = os.Stat(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)

	require.NoError(t, e.Cleanup("task-8"))
	_, err = os.Stat(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIsZip(t *testing.T) {
	assert.True(t, IsZip(buildZip(t, map[string]string{"a": "b"})))
	assert.False(t, IsZip([]byte("plain text payload")))
	assert.False(t, IsZip(nil))
}

func TestEntryPaths(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"docs/", "src/main.go", "README.md"} {
		if name[len(name)-1] == '/' {
			_, err := w.Create(name)
			require.NoError(t, err)
			continue
		}
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte("content"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	paths, err := EntryPaths(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.go", "README.md"}, paths)

	_, err = EntryPaths([]byte("not an archive"))
	assert.ErrorIs(t, err, types.ErrCorruptArchive)

	_, err = EntryPaths(buildZip(t, map[string]string{"../escape": "x"}))
	assert.ErrorIs(t, err, types.ErrPathTraversal)
}
