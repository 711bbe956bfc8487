// Package archive validates uploaded archives and unpacks them into a
// task-private storage area, producing a FileNode tree with lazy content
// access. Extraction rejects entries that resolve outside the task's
// extraction root; it never clamps them silently.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"codestory/pkg/types"
)

const (
	// dirPrefix namespaces task extraction areas under the work root.
	dirPrefix = "codestory_"

	// maxEntryBytes caps a single decompressed entry to keep archive bombs
	// from filling the work area.
	maxEntryBytes = 64 * 1024 * 1024
)

// Extractor unpacks uploaded archives into scoped work directories.
type Extractor struct {
	workRoot string
	logger   *zap.Logger
}

// New creates an Extractor writing beneath workRoot.
func New(workRoot string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{workRoot: workRoot, logger: logger}
}

// TaskDir returns the extraction root for a task.
func (e *Extractor) TaskDir(taskID string) string {
	return filepath.Join(e.workRoot, dirPrefix+taskID)
}

// IsZip reports whether data looks like a ZIP container.
func IsZip(data []byte) bool {
	_, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	return err == nil
}

// EntryPaths lists the archive's regular-file entry paths in archive order
// without extracting anything. Unsafe entries are reported as errors, the
// same way Extract would reject them.
func EntryPaths(data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptArchive, err)
	}

	var paths []string
	seen := make(map[string]bool)
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rel, err := sanitizeEntryPath(entry.Name)
		if err != nil {
			return nil, err
		}
		if seen[rel] {
			continue
		}
		seen[rel] = true
		paths = append(paths, rel)
	}
	return paths, nil
}

// Extract validates and unpacks the archive into the task's private area and
// returns the file tree. The tree's file set reproduces the archive's regular
// entries exactly, in archive order. The root node takes its name from
// fileName with the container extension stripped.
func (e *Extractor) Extract(taskID, fileName string, data []byte) (*types.FileNode, error) {
	if len(data) == 0 {
		return nil, types.ErrEmptyUpload
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptArchive, err)
	}

	taskDir := e.TaskDir(taskID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction root: %w", err)
	}

	root := &types.FileNode{
		Name: rootName(fileName),
		Path: "",
		Kind: types.NodeFolder,
	}

	byPath := make(map[string]*types.FileNode)
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		rel, err := sanitizeEntryPath(entry.Name)
		if err != nil {
			e.logger.Warn("rejecting archive entry",
				zap.String("task", taskID),
				zap.String("entry", entry.Name),
				zap.Error(err))
			_ = e.Cleanup(taskID)
			return nil, err
		}

		dest := filepath.Join(taskDir, filepath.FromSlash(rel))
		if err := writeEntry(entry, dest); err != nil {
			_ = e.Cleanup(taskID)
			return nil, fmt.Errorf("%w: extract %s: %v", types.ErrCorruptArchive, entry.Name, err)
		}

		// appended archives may repeat a path; the later entry just
		// overwrote the earlier one on disk, so keep one node per path
		if node, ok := byPath[rel]; ok {
			node.Size = int64(entry.UncompressedSize64)
			continue
		}

		node := insertFile(root, rel, int64(entry.UncompressedSize64))
		destPath := dest
		node.SetOpener(func() (io.ReadCloser, error) {
			return os.Open(destPath)
		})
		byPath[rel] = node
	}

	if len(byPath) == 0 {
		_ = e.Cleanup(taskID)
		return nil, types.ErrEmptyArchive
	}

	e.logger.Debug("archive extracted",
		zap.String("task", taskID),
		zap.Int("files", len(byPath)))
	return root, nil
}

// Cleanup removes the task's extraction area. Called when the owning task
// is evicted or fails.
func (e *Extractor) Cleanup(taskID string) error {
	dir := e.TaskDir(taskID)
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("cleanup failed", zap.String("dir", dir), zap.Error(err))
		return err
	}
	return nil
}

// sanitizeEntryPath normalizes a zip entry name and rejects anything that
// would resolve outside the extraction root.
func sanitizeEntryPath(name string) (string, error) {
	rel := path.Clean(strings.ReplaceAll(name, `\`, "/"))

	if rel == "." || rel == "" {
		return "", fmt.Errorf("%w: empty entry name", types.ErrCorruptArchive)
	}
	if path.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", types.ErrPathTraversal, name)
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q", types.ErrPathTraversal, name)
	}
	// Windows drive letters or UNC leftovers
	if strings.Contains(rel, ":") {
		return "", fmt.Errorf("%w: %q", types.ErrPathTraversal, name)
	}
	return rel, nil
}

// writeEntry streams one zip entry to disk with a decompression cap.
func writeEntry(entry *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	written, err := io.Copy(out, io.LimitReader(src, maxEntryBytes+1))
	if err != nil {
		return err
	}
	if written > maxEntryBytes {
		return fmt.Errorf("entry exceeds %d byte cap", maxEntryBytes)
	}
	return nil
}

// insertFile adds a file node at rel, creating intermediate folders in
// first-seen (archive) order, and returns the new node.
func insertFile(root *types.FileNode, rel string, size int64) *types.FileNode {
	parts := strings.Split(rel, "/")
	current := root

	for i := 0; i < len(parts)-1; i++ {
		folderPath := strings.Join(parts[:i+1], "/")
		current = findOrCreateFolder(current, parts[i], folderPath)
	}

	node := &types.FileNode{
		Name: parts[len(parts)-1],
		Path: rel,
		Kind: types.NodeFile,
		Size: size,
	}
	current.Children = append(current.Children, node)
	return node
}

func findOrCreateFolder(parent *types.FileNode, name, folderPath string) *types.FileNode {
	for _, child := range parent.Children {
		if child.Kind == types.NodeFolder && child.Name == name {
			return child
		}
	}
	folder := &types.FileNode{
		Name: name,
		Path: folderPath,
		Kind: types.NodeFolder,
	}
	parent.Children = append(parent.Children, folder)
	return folder
}

func rootName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
