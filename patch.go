// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/flate"
)

// patchMagic opens every patch file.
var patchMagic = [12]byte{0x91, 'Z', 'I', 'P', 'A', 'T', 'C', 'H',
	0x0D, 0x0A, 0x1A, 0x0A}

// Patch chunk tags. Unknown tags made of printable ASCII are skipped by
// their length prefix; any other tag fails with PatchUnknownChunk.
var (
	chunkFileHeader  = [4]byte{'F', 'H', 'D', 'R'}
	chunkAddFile     = [4]byte{'A', 'D', 'D', 'F'}
	chunkAddData     = [4]byte{'A', 'D', 'T', 'A'}
	chunkDeleteDir   = [4]byte{'D', 'E', 'L', 'D'}
	chunkSqPackIndex = [4]byte{'S', 'Q', 'P', 'I'}
	chunkSqPackData  = [4]byte{'S', 'Q', 'P', 'D'}
	chunkEnd         = [4]byte{'E', 'O', 'F', '_'}
)

// sqpackSpliceDeflated flags a splice payload stored DEFLATE-compressed.
const sqpackSpliceDeflated = 1

// ApplyPatch applies an official incremental patch file to the given data
// directory, chunk by chunk in stream order. Intermediate directories are
// created as needed. A failure aborts the patch with a PatchError; no
// rollback is attempted, callers snapshot at the directory level.
func ApplyPatch(dataDirectory, patchPath string) error {
	f, err := os.Open(patchPath)
	if err != nil {
		return &PatchError{Kind: PatchTruncated, Err: err}
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return &PatchError{Kind: PatchTruncated, Err: err}
	}
	defer data.Unmap()

	return applyPatchData(dataDirectory, data)
}

func applyPatchData(dataDirectory string, data []byte) error {
	if len(data) < len(patchMagic) ||
		!bytes.Equal(data[:len(patchMagic)], patchMagic[:]) {
		return &PatchError{Kind: PatchBadMagic}
	}

	offset := int64(len(patchMagic))

	// The current target opened by the last FHDR chunk, receiving ADTA
	// payloads.
	var target *os.File
	closeTarget := func() {
		if target != nil {
			target.Close()
			target = nil
		}
	}
	defer closeTarget()

	for {
		if offset+8 > int64(len(data)) {
			return &PatchError{Kind: PatchTruncated, ChunkOffset: offset}
		}

		length := int64(binary.BigEndian.Uint32(data[offset:]))
		var tag [4]byte
		copy(tag[:], data[offset+4:])

		payloadStart := offset + 8
		payloadEnd := payloadStart + length
		// Each chunk closes with a CRC-32 of its tag and payload.
		if payloadEnd+4 > int64(len(data)) {
			return &PatchError{Kind: PatchTruncated, ChunkOffset: offset}
		}
		payload := data[payloadStart:payloadEnd]

		switch tag {
		case chunkEnd:
			return nil
		case chunkFileHeader:
			closeTarget()
			opened, err := applyFileHeader(dataDirectory, payload)
			if err != nil {
				return patchErrorAt(err, offset)
			}
			target = opened
		case chunkAddData:
			if target == nil {
				return &PatchError{Kind: PatchWriteFailed, ChunkOffset: offset,
					Err: fmt.Errorf("ADTA chunk before any FHDR")}
			}
			if err := applyAddData(target, payload); err != nil {
				return patchErrorAt(err, offset)
			}
		case chunkAddFile:
			if err := applyAddFile(dataDirectory, payload); err != nil {
				return patchErrorAt(err, offset)
			}
		case chunkDeleteDir:
			if err := applyDeleteDir(dataDirectory, payload); err != nil {
				return patchErrorAt(err, offset)
			}
		case chunkSqPackIndex, chunkSqPackData:
			if err := applySqPackSplice(dataDirectory, payload); err != nil {
				return patchErrorAt(err, offset)
			}
		default:
			for _, c := range tag {
				if c < 0x20 || c > 0x7e {
					return &PatchError{Kind: PatchUnknownChunk,
						ChunkOffset: offset}
				}
			}
			// Recognizably framed but unknown; skip by length.
		}

		offset = payloadEnd + 4
	}
}

func patchErrorAt(err error, offset int64) error {
	if patchErr, ok := err.(*PatchError); ok {
		patchErr.ChunkOffset = offset
		return patchErr
	}
	return &PatchError{Kind: PatchWriteFailed, ChunkOffset: offset, Err: err}
}

// resolveTarget joins a patch-relative path against the data directory,
// rejecting escapes.
func resolveTarget(dataDirectory, relative string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(relative))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) ||
		filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("patch path %q escapes the data directory", relative)
	}
	return filepath.Join(dataDirectory, cleaned), nil
}

// patchString reads a u16-length-prefixed string, returning the remainder.
func patchString(payload []byte) (string, []byte, error) {
	if len(payload) < 2 {
		return "", nil, &PatchError{Kind: PatchTruncated}
	}
	length := int(binary.BigEndian.Uint16(payload))
	if len(payload) < 2+length {
		return "", nil, &PatchError{Kind: PatchTruncated}
	}
	return string(payload[2 : 2+length]), payload[2+length:], nil
}

// applyFileHeader begins a new target file: relative path plus expected
// final size. The file is created empty and sized up front.
func applyFileHeader(dataDirectory string, payload []byte) (*os.File, error) {
	relative, rest, err := patchString(payload)
	if err != nil {
		return nil, err
	}
	if len(rest) < 8 {
		return nil, &PatchError{Kind: PatchTruncated}
	}
	expectedSize := int64(binary.BigEndian.Uint64(rest))

	path, err := resolveTarget(dataDirectory, relative)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if expectedSize > 0 {
		if err := f.Truncate(expectedSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// applyAddData writes bytes at a declared offset into the current target.
func applyAddData(target *os.File, payload []byte) error {
	if len(payload) < 8 {
		return &PatchError{Kind: PatchTruncated}
	}
	offset := int64(binary.BigEndian.Uint64(payload))
	_, err := target.WriteAt(payload[8:], offset)
	return err
}

// applyAddFile writes bytes at a declared offset into a named file,
// creating it and its directories as needed.
func applyAddFile(dataDirectory string, payload []byte) error {
	relative, rest, err := patchString(payload)
	if err != nil {
		return err
	}
	if len(rest) < 8 {
		return &PatchError{Kind: PatchTruncated}
	}
	offset := int64(binary.BigEndian.Uint64(rest))

	path, err := resolveTarget(dataDirectory, relative)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteAt(rest[8:], offset)
	return err
}

// applyDeleteDir removes a directory tree under the data directory.
func applyDeleteDir(dataDirectory string, payload []byte) error {
	relative, _, err := patchString(payload)
	if err != nil {
		return err
	}
	path, err := resolveTarget(dataDirectory, relative)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}

// applySqPackSplice writes bytes into a pack file of a repository: the
// payload names the repository and pack filename, then carries the splice
// offset, a flags word, the raw length, and the possibly DEFLATE-compressed
// bytes.
func applySqPackSplice(dataDirectory string, payload []byte) error {
	repository, rest, err := patchString(payload)
	if err != nil {
		return err
	}
	filename, rest, err := patchString(rest)
	if err != nil {
		return err
	}
	if len(rest) < 16 {
		return &PatchError{Kind: PatchTruncated}
	}
	offset := int64(binary.BigEndian.Uint64(rest))
	flags := binary.BigEndian.Uint32(rest[8:])
	rawLength := binary.BigEndian.Uint32(rest[12:])
	body := rest[16:]

	if flags&sqpackSpliceDeflated != 0 {
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()

		inflated := make([]byte, rawLength)
		if _, err := io.ReadFull(fr, inflated); err != nil {
			return &PatchError{Kind: PatchTruncated, Err: err}
		}
		body = inflated
	} else if int(rawLength) != len(body) {
		return &PatchError{Kind: PatchTruncated}
	}

	path, err := resolveTarget(dataDirectory,
		filepath.Join("sqpack", repository, filename))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteAt(body, offset)
	return err
}
