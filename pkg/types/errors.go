package types

import "errors"

// Domain errors shared across the pipeline and its transports
var (
	// Upload validation errors, returned synchronously at submit time
	ErrSizeLimitExceeded = errors.New("archive exceeds the configured size limit")
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrEmptyUpload       = errors.New("upload is empty")

	// Extraction errors
	ErrCorruptArchive = errors.New("corrupt archive")
	ErrEmptyArchive   = errors.New("archive contains no regular files")
	ErrPathTraversal  = errors.New("archive entry escapes extraction root")

	// Task lifecycle errors
	ErrUnknownTask   = errors.New("unknown task")
	ErrNotReady      = errors.New("task is not ready")
	ErrTaskTerminal  = errors.New("task already reached a terminal state")
	ErrTaskCancelled = errors.New("task cancelled")

	// Retrieval and generation errors
	ErrIndexNotReady       = errors.New("semantic index not ready")
	ErrGenerationFailed    = errors.New("artifact generation failed")
	ErrUnknownArtifactKind = errors.New("unknown artifact kind")
	ErrUnsupportedEncoding = errors.New("unsupported file encoding")
)
