// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/klauspost/compress/flate"
)

// deflateBytes compresses data with the same library the reader inflates
// with.
func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	w, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// buildSubBlock frames one sub-block, raw or compressed.
func buildSubBlock(t *testing.T, payload []byte, compress bool) []byte {
	t.Helper()

	stored := payload
	compressedLength := uint32(compressedLengthRaw)
	if compress {
		stored = deflateBytes(t, payload)
		compressedLength = uint32(len(stored))
	}

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, datSubBlockHeader{
		Size:               16,
		CompressedLength:   compressedLength,
		DecompressedLength: uint32(len(payload)),
	})
	buf.Write(stored)
	return buf.Bytes()
}

// buildStandardBlock frames a standard type block holding the given
// payload split into the given pieces.
func buildStandardBlock(t *testing.T, pieces [][]byte, compress bool) []byte {
	t.Helper()

	var subBlocks [][]byte
	var total int
	for _, piece := range pieces {
		subBlocks = append(subBlocks, buildSubBlock(t, piece, compress))
		total += len(piece)
	}

	headerSize := uint32(24 + 8*len(pieces))
	// Entries are 6 bytes each; the header region is padded to keep the
	// sub-blocks 8-byte aligned.
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, datBlockHeader{
		HeaderSize:       headerSize,
		BlockType:        blockTypeStandard,
		UncompressedSize: uint32(total),
		NumBlocks:        uint32(len(pieces)),
	})

	offset := uint16(0)
	for i, sub := range subBlocks {
		_ = binary.Write(buf, binary.LittleEndian, standardBlockEntry{
			Offset:           offset,
			BlockSize:        uint16(len(sub)),
			DecompressedSize: uint16(len(pieces[i])),
		})
		offset += uint16(len(sub))
	}
	buf.Write(make([]byte, int(headerSize)-buf.Len()))

	for _, sub := range subBlocks {
		buf.Write(sub)
	}
	return buf.Bytes()
}

func TestDecodeStandardBlock(t *testing.T) {

	tests := []struct {
		name     string
		pieces   [][]byte
		compress bool
	}{
		{"single raw", [][]byte{[]byte("hello sqpack")}, false},
		{"single compressed", [][]byte{bytes.Repeat([]byte("abcd"), 512)}, true},
		{"multi raw", [][]byte{[]byte("hello, "), []byte("world!")}, false},
		{"multi compressed", [][]byte{
			bytes.Repeat([]byte{0x42}, 300),
			bytes.Repeat([]byte{0x17}, 200),
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var want []byte
			for _, piece := range tt.pieces {
				want = append(want, piece...)
			}

			data := buildStandardBlock(t, tt.pieces, tt.compress)
			got, err := decodeDatBlock(data, 0)
			if err != nil {
				t.Fatalf("decodeDatBlock failed, reason: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("decoded %d bytes, want %d", len(got), len(want))
			}
		})
	}
}

func TestDecodeStandardBlockAtOffset(t *testing.T) {

	payload := []byte("block not at zero")
	block := buildStandardBlock(t, [][]byte{payload}, false)

	data := append(make([]byte, 128), block...)
	got, err := decodeDatBlock(data, 128)
	if err != nil {
		t.Fatalf("decodeDatBlock failed, reason: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("decoded %q, want %q", got, payload)
	}
}

func TestDecodeBlockSizeMismatch(t *testing.T) {

	block := buildStandardBlock(t, [][]byte{[]byte("mismatch")}, false)
	// Corrupt the declared uncompressed size.
	binary.LittleEndian.PutUint32(block[8:], 9999)

	var corruptErr *CorruptError
	if _, err := decodeDatBlock(block, 0); !errors.As(err, &corruptErr) {
		t.Errorf("decodeDatBlock got %v, want CorruptError", err)
	}
}

func TestDecodeBlockBadOffset(t *testing.T) {

	var corruptErr *CorruptError
	if _, err := decodeDatBlock([]byte{1, 2, 3}, 100); !errors.As(err, &corruptErr) {
		t.Errorf("decodeDatBlock got %v, want CorruptError", err)
	}
}

func TestDecodeEmptyBlock(t *testing.T) {

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, datBlockHeader{
		HeaderSize: 24,
		BlockType:  blockTypeEmpty,
	})

	got, err := decodeDatBlock(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("decodeDatBlock failed, reason: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d bytes, want 0", len(got))
	}
}

// buildTextureBlock frames a texture type block: an uncompressed header
// region followed by one mip of compressed pixels.
func buildTextureBlock(t *testing.T, texHeader, mip []byte) []byte {
	t.Helper()

	sub := buildSubBlock(t, mip, true)

	headerSize := uint32(24 + 20 + 2) // fixed header, one mip entry, one size word
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, datBlockHeader{
		HeaderSize:       headerSize,
		BlockType:        blockTypeTexture,
		UncompressedSize: uint32(len(texHeader) + len(mip)),
		NumBlocks:        1,
	})
	_ = binary.Write(buf, binary.LittleEndian, textureLodBlock{
		CompressedOffset: uint32(len(texHeader)),
		CompressedSize:   uint32(len(sub)),
		DecompressedSize: uint32(len(mip)),
		BlockCount:       1,
	})
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(sub)))

	buf.Write(texHeader)
	buf.Write(sub)
	return buf.Bytes()
}

func TestDecodeTextureBlock(t *testing.T) {

	texHeader := bytes.Repeat([]byte{0xAA}, texHeaderSize)
	mip := bytes.Repeat([]byte{0x5C, 0x33}, 512)

	data := buildTextureBlock(t, texHeader, mip)
	got, err := decodeDatBlock(data, 0)
	if err != nil {
		t.Fatalf("decodeDatBlock failed, reason: %v", err)
	}

	want := append(append([]byte(nil), texHeader...), mip...)
	if !bytes.Equal(got, want) {
		t.Errorf("decoded %d bytes, want %d", len(got), len(want))
	}
}

func TestDecodeModelBlockHeaderOnly(t *testing.T) {

	// A model block with no geometry regions decodes to just the
	// synthesized 68-byte file header.
	block := modelBlock{
		Version:                0x1000000,
		VertexDeclarationCount: 2,
		MaterialCount:          1,
		LodCount:               1,
	}

	headerSize := uint32(24 + binary.Size(block))
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, datBlockHeader{
		HeaderSize:       headerSize,
		BlockType:        blockTypeModel,
		UncompressedSize: mdlFileHeaderSize,
	})
	_ = binary.Write(buf, binary.LittleEndian, block)

	got, err := decodeDatBlock(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("decodeDatBlock failed, reason: %v", err)
	}
	if len(got) != mdlFileHeaderSize {
		t.Fatalf("decoded %d bytes, want %d", len(got), mdlFileHeaderSize)
	}

	var fixed mdlFileHeaderFixed
	if err := binary.Read(bytes.NewReader(got), binary.LittleEndian, &fixed); err != nil {
		t.Fatal(err)
	}
	if fixed.Version != block.Version ||
		fixed.VertexDeclarationCount != block.VertexDeclarationCount ||
		fixed.MaterialCount != block.MaterialCount ||
		fixed.LodCount != block.LodCount {
		t.Errorf("synthesized header %+v does not match block %+v", fixed, block)
	}
}

func TestDatFileMissing(t *testing.T) {

	if _, err := OpenDat("/does/not/exist.dat0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("OpenDat got %v, want ErrNotFound", err)
	}
}
