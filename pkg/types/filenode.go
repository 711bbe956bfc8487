package types

import (
	"errors"
	"io"
)

// NodeKind distinguishes files from folders in an extracted tree
type NodeKind string

const (
	NodeFile   NodeKind = "file"
	NodeFolder NodeKind = "folder"
)

// FileNode represents one entry of an extracted archive. Folder children
// preserve archive order. The tree is read-only once built; content is
// reached lazily through the opener installed by the extractor.
type FileNode struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"` // slash-separated, relative to archive root
	Kind        NodeKind    `json:"type"`
	Size        int64       `json:"size,omitempty"`
	Description string      `json:"description,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Children    []*FileNode `json:"children,omitempty"`

	opener func() (io.ReadCloser, error)
}

// SetOpener installs the lazy content accessor. Only meaningful for files.
func (n *FileNode) SetOpener(open func() (io.ReadCloser, error)) {
	n.opener = open
}

// Open returns a reader over the file content.
func (n *FileNode) Open() (io.ReadCloser, error) {
	if n.Kind != NodeFile {
		return nil, errors.New("cannot open a folder node")
	}
	if n.opener == nil {
		return nil, errors.New("no content accessor for " + n.Path)
	}
	return n.opener()
}

// Walk visits the node and every descendant in tree order.
func (n *FileNode) Walk(fn func(*FileNode) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := child.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Files returns every file node in tree order.
func (n *FileNode) Files() []*FileNode {
	var files []*FileNode
	_ = n.Walk(func(node *FileNode) error {
		if node.Kind == NodeFile {
			files = append(files, node)
		}
		return nil
	})
	return files
}

// FilePaths flattens the tree back to its file path set, in tree order.
func (n *FileNode) FilePaths() []string {
	files := n.Files()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// FileCount returns the number of file nodes in the tree.
func (n *FileNode) FileCount() int {
	return len(n.Files())
}

// Structure is the ready-task view of an archive: the enriched file tree
// plus the architecture diagram source built at finalize.
type Structure struct {
	Tree          *FileNode `json:"tree"`
	DiagramSource string    `json:"diagramSource"`
}
