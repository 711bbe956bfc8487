// Package types provides shared domain types for the CodeStory analysis backend.
//
// This package defines the data model used across the pipeline: tasks and
// their lifecycle, extracted file trees, per-file digests, and the closed set
// of generated artifacts.
//
// # Core Types
//
// Task tracks one end-to-end analysis job behind an opaque identifier:
//
//	task := &types.Task{
//	    ID:     uuid.NewString(),
//	    Status: types.StatusQueued,
//	}
//
// Digest is the compact structural summary of one source file, fed to the
// embedding index:
//
//	digest := &types.Digest{
//	    Path:    "app/service.py",
//	    Symbols: []string{"UserService", "login"},
//	    Imports: []string{"db", "auth"},
//	}
//
// Artifact is a tagged union over the three generated outputs
// (ArchitectureGraph, ChatScript, Glossary); exactly one payload is set and
// Validate enforces the per-kind schema at generation time, never at
// consumption time.
//
// # Validation
//
// Domain types carry validation methods to ensure integrity before they are
// stored or served:
//
//	if err := artifact.Validate(); err != nil {
//	    return err
//	}
package types
