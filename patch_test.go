// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

// patchBuilder assembles a framed patch stream.
type patchBuilder struct {
	buf bytes.Buffer
}

func newPatchBuilder() *patchBuilder {
	b := &patchBuilder{}
	b.buf.Write(patchMagic[:])
	return b
}

func (b *patchBuilder) chunk(tag [4]byte, payload []byte) *patchBuilder {
	_ = binary.Write(&b.buf, binary.BigEndian, uint32(len(payload)))
	b.buf.Write(tag[:])
	b.buf.Write(payload)
	crc := crc32.ChecksumIEEE(append(tag[:], payload...))
	_ = binary.Write(&b.buf, binary.BigEndian, crc)
	return b
}

func (b *patchBuilder) bytes() []byte {
	return b.buf.Bytes()
}

func bePath(path string) []byte {
	out := make([]byte, 2+len(path))
	binary.BigEndian.PutUint16(out, uint16(len(path)))
	copy(out[2:], path)
	return out
}

func fileHeaderPayload(path string, size uint64) []byte {
	payload := bePath(path)
	return binary.BigEndian.AppendUint64(payload, size)
}

func addDataPayload(offset uint64, data []byte) []byte {
	payload := binary.BigEndian.AppendUint64(nil, offset)
	return append(payload, data...)
}

func addFilePayload(path string, offset uint64, data []byte) []byte {
	payload := bePath(path)
	payload = binary.BigEndian.AppendUint64(payload, offset)
	return append(payload, data...)
}

func splicePayload(t *testing.T, repository, filename string, offset uint64,
	data []byte, compress bool) []byte {

	payload := bePath(repository)
	payload = append(payload, bePath(filename)...)
	payload = binary.BigEndian.AppendUint64(payload, offset)

	body := data
	flags := uint32(0)
	if compress {
		body = deflateBytes(t, data)
		flags = sqpackSpliceDeflated
	}
	payload = binary.BigEndian.AppendUint32(payload, flags)
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(data)))
	return append(payload, body...)
}

func writePatchFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.patch")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyPatch(t *testing.T) {

	dataDir := t.TempDir()

	// Pre-existing directory to be deleted by the DELD chunk.
	staleDir := filepath.Join(dataDir, "movie", "stale")
	if err := os.MkdirAll(staleDir, 0o755); err != nil {
		t.Fatal(err)
	}

	spliced := bytes.Repeat([]byte{0xAB, 0xCD}, 256)

	patch := newPatchBuilder().
		chunk(chunkFileHeader, fileHeaderPayload("boot/version.dat", 8)).
		chunk(chunkAddData, addDataPayload(0, []byte("20220325"))).
		chunk(chunkAddFile, addFilePayload("boot/extra.dat", 4, []byte("tail"))).
		chunk([4]byte{'X', 'X', 'X', 'X'}, []byte("ignored chunk body")).
		chunk(chunkDeleteDir, bePath("movie/stale")).
		chunk(chunkSqPackData,
			splicePayload(t, "ffxiv", "000000.win32.dat0", 128, spliced, true)).
		chunk(chunkEnd, nil).
		bytes()

	if err := ApplyPatch(dataDir, writePatchFile(t, patch)); err != nil {
		t.Fatalf("ApplyPatch failed, reason: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dataDir, "boot", "version.dat"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("20220325")) {
		t.Errorf("version.dat got %q, want %q", got, "20220325")
	}

	got, err = os.ReadFile(filepath.Join(dataDir, "boot", "extra.dat"))
	if err != nil {
		t.Fatal(err)
	}
	want := append(make([]byte, 4), []byte("tail")...)
	if !bytes.Equal(got, want) {
		t.Errorf("extra.dat got % x, want % x", got, want)
	}

	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Error("movie/stale survived the DELD chunk")
	}

	got, err = os.ReadFile(filepath.Join(dataDir, "sqpack", "ffxiv",
		"000000.win32.dat0"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 128+len(spliced) {
		t.Fatalf("dat0 got %d bytes, want %d", len(got), 128+len(spliced))
	}
	if !bytes.Equal(got[128:], spliced) {
		t.Error("dat0 splice content mismatch")
	}
}

func TestApplyPatchBadMagic(t *testing.T) {

	path := writePatchFile(t, []byte("definitely not a patch file"))

	var patchErr *PatchError
	err := ApplyPatch(t.TempDir(), path)
	if !errors.As(err, &patchErr) || patchErr.Kind != PatchBadMagic {
		t.Errorf("ApplyPatch got %v, want PatchError{BadMagic}", err)
	}
}

func TestApplyPatchTruncated(t *testing.T) {

	// A valid magic with a chunk whose declared length runs past the end.
	data := append(append([]byte(nil), patchMagic[:]...),
		0x00, 0x00, 0xFF, 0xFF, 'F', 'H', 'D', 'R')
	path := writePatchFile(t, data)

	var patchErr *PatchError
	err := ApplyPatch(t.TempDir(), path)
	if !errors.As(err, &patchErr) || patchErr.Kind != PatchTruncated {
		t.Errorf("ApplyPatch got %v, want PatchError{Truncated}", err)
	}
	if patchErr != nil && patchErr.ChunkOffset != int64(len(patchMagic)) {
		t.Errorf("chunk offset got 0x%x, want 0x%x",
			patchErr.ChunkOffset, len(patchMagic))
	}
}

func TestApplyPatchMissingEnd(t *testing.T) {

	patch := newPatchBuilder().
		chunk(chunkFileHeader, fileHeaderPayload("boot/a.dat", 0)).
		bytes()
	path := writePatchFile(t, patch)

	var patchErr *PatchError
	err := ApplyPatch(t.TempDir(), path)
	if !errors.As(err, &patchErr) || patchErr.Kind != PatchTruncated {
		t.Errorf("ApplyPatch got %v, want PatchError{Truncated}", err)
	}
}

func TestApplyPatchUnknownChunkDesync(t *testing.T) {

	patch := newPatchBuilder().
		chunk([4]byte{0x00, 0x01, 0x02, 0x03}, []byte("binary tag")).
		bytes()
	path := writePatchFile(t, patch)

	var patchErr *PatchError
	err := ApplyPatch(t.TempDir(), path)
	if !errors.As(err, &patchErr) || patchErr.Kind != PatchUnknownChunk {
		t.Errorf("ApplyPatch got %v, want PatchError{UnknownChunk}", err)
	}
}

func TestApplyPatchEscapingPath(t *testing.T) {

	patch := newPatchBuilder().
		chunk(chunkAddFile, addFilePayload("../escape.dat", 0, []byte("no"))).
		chunk(chunkEnd, nil).
		bytes()
	path := writePatchFile(t, patch)

	dataDir := t.TempDir()
	var patchErr *PatchError
	err := ApplyPatch(dataDir, path)
	if !errors.As(err, &patchErr) || patchErr.Kind != PatchWriteFailed {
		t.Errorf("ApplyPatch got %v, want PatchError{WriteFailed}", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dataDir),
		"escape.dat")); !os.IsNotExist(err) {
		t.Error("escaping path was written outside the data directory")
	}
}

func TestGameDataApplyPatch(t *testing.T) {

	gameDir := writeTestTree(t, "ffxiv")
	game := openTestGameData(t, gameDir)

	patch := newPatchBuilder().
		chunk(chunkFileHeader, fileHeaderPayload("ffxivgame.ver", 0)).
		chunk(chunkAddData, addDataPayload(0, []byte("2022.08.05.0000.0001"))).
		chunk(chunkEnd, nil).
		bytes()

	if err := game.ApplyPatch(writePatchFile(t, patch)); err != nil {
		t.Fatalf("ApplyPatch failed, reason: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(gameDir, "ffxivgame.ver"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "2022.08.05.0000.0001" {
		t.Errorf("ffxivgame.ver got %q", got)
	}
}
