// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrNotFound is returned when a path or hash is not present in any
	// index. Callers are expected to treat it as benign.
	ErrNotFound = errors.New("file not found in any index")

	// ErrBadSqPackMagic is returned when a file does not begin with the
	// SqPack signature.
	ErrBadSqPackMagic = errors.New("SqPack magic not found")

	// ErrUnknownCategory is returned when a path names a category that is
	// not part of the known category table.
	ErrUnknownCategory = errors.New("unknown category name")

	// ErrUnknownRepository names a repository that matches neither the
	// base repository nor an ex<N> expansion. No function of this package
	// returns it: ParseRepositoryCategory reports a first path token that
	// is neither a repository nor a category as ErrUnknownCategory.
	ErrUnknownRepository = errors.New("unknown repository name")

	// ErrUnsupportedTextureFormat is returned for texture formats other
	// than BGRA8, BC1, BC3 and BC5.
	ErrUnsupportedTextureFormat = errors.New("unsupported texture format")

	// ErrUnsupportedVertexElement is returned when a vertex declaration
	// carries a (usage, type) pair outside the documented matrix.
	ErrUnsupportedVertexElement = errors.New("unsupported vertex element")
)

// CorruptError reports a structurally invalid file: a bad magic, a
// truncated block, or a size mismatch after decompression.
type CorruptError struct {
	// Where identifies the structure being decoded, e.g. "dat block" or
	// "index header".
	Where string

	// Reason describes the mismatch.
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt %s: %s", e.Where, e.Reason)
}

func corrupt(where, format string, a ...interface{}) *CorruptError {
	return &CorruptError{Where: where, Reason: fmt.Sprintf(format, a...)}
}

// IoError wraps an underlying file-system failure with the operation and
// path that triggered it.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// PatchErrorKind classifies a patch application failure.
type PatchErrorKind int

// Patch error kinds.
const (
	PatchBadMagic PatchErrorKind = iota
	PatchTruncated
	PatchUnknownChunk
	PatchWriteFailed
)

func (k PatchErrorKind) String() string {
	switch k {
	case PatchBadMagic:
		return "BadMagic"
	case PatchTruncated:
		return "Truncated"
	case PatchUnknownChunk:
		return "UnknownChunk"
	case PatchWriteFailed:
		return "WriteFailed"
	}
	return "Unknown"
}

// PatchError reports a failure while applying a patch. ChunkOffset is the
// absolute offset of the chunk being processed when the failure occurred.
type PatchError struct {
	Kind        PatchErrorKind
	ChunkOffset int64
	Err         error
}

func (e *PatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("patch error %s at offset 0x%x: %v",
			e.Kind, e.ChunkOffset, e.Err)
	}
	return fmt.Sprintf("patch error %s at offset 0x%x", e.Kind, e.ChunkOffset)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// RepairError reports that a repair action's filesystem step failed for a
// repository. Previously repaired repositories remain repaired.
type RepairError struct {
	Repository *Repository
	Err        error
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("failed to repair repository %s: %v",
		e.Repository.Name, e.Err)
}

func (e *RepairError) Unwrap() error {
	return e.Err
}
