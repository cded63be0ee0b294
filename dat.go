// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/flate"
)

// Data block types stored in the block header.
const (
	blockTypeEmpty    = 1
	blockTypeStandard = 2
	blockTypeModel    = 3
	blockTypeTexture  = 4
)

// compressedLengthRaw flags a sub-block stored without compression.
const compressedLengthRaw = 32000

// datBlockHeader frames one self-describing unit within a data file.
type datBlockHeader struct {
	// HeaderSize is the total size of the header region, including the
	// per-sub-block tables that follow the fixed fields.
	HeaderSize uint32

	// BlockType selects standard, model or texture layout.
	BlockType uint32

	// UncompressedSize is the size of the fully decoded payload.
	UncompressedSize uint32

	Unknown uint32

	// BlockSize of the largest sub-block.
	BlockSize uint32

	// NumBlocks is the sub-block count for the standard layout and the
	// mip count for the texture layout.
	NumBlocks uint32
}

// standardBlockEntry locates one sub-block of a standard-type block,
// relative to the end of the block header.
type standardBlockEntry struct {
	Offset           uint16
	BlockSize        uint16
	DecompressedSize uint16
}

// textureLodBlock locates the sub-blocks of one mip level.
type textureLodBlock struct {
	CompressedOffset uint32
	CompressedSize   uint32
	DecompressedSize uint32
	BlockOffset      uint32
	BlockCount       uint32
}

// datSubBlockHeader precedes every raw or DEFLATE-compressed sub-block.
type datSubBlockHeader struct {
	Size               uint32
	Unknown            uint32
	CompressedLength   uint32
	DecompressedLength uint32
}

// DatFile reads asset blocks out of one .dat<N> file. The file is opened
// lazily per read and closed before the call returns.
type DatFile struct {
	path string
}

// OpenDat returns a DatFile for the data file at path. The file itself is
// not touched until ReadFromOffset.
func OpenDat(path string) (*DatFile, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &IoError{Op: "stat", Path: path, Err: err}
	}
	return &DatFile{path: path}, nil
}

// ReadFromOffset decodes the block at the given absolute offset into a
// contiguous buffer.
func (d *DatFile) ReadFromOffset(offset uint64) ([]byte, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, &IoError{Op: "open", Path: d.path, Err: err}
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &IoError{Op: "mmap", Path: d.path, Err: err}
	}
	defer data.Unmap()

	return decodeDatBlock(data, offset)
}

// decodeDatBlock decodes the self-describing block at offset within data.
func decodeDatBlock(data []byte, offset uint64) ([]byte, error) {
	if offset >= uint64(len(data)) {
		return nil, corrupt("dat block", "offset 0x%x beyond file end", offset)
	}

	r := bytes.NewReader(data[offset:])

	var header datBlockHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, corrupt("dat block", "truncated block header")
	}

	switch header.BlockType {
	case blockTypeEmpty:
		return []byte{}, nil
	case blockTypeStandard:
		return decodeStandardBlock(data, offset, &header, r)
	case blockTypeModel:
		return decodeModelBlock(data, offset, &header, r)
	case blockTypeTexture:
		return decodeTextureBlock(data, offset, &header, r)
	}
	return nil, corrupt("dat block", "unknown block type %d", header.BlockType)
}

// decodeStandardBlock concatenates the decoded sub-blocks of a standard
// type block.
func decodeStandardBlock(data []byte, base uint64, header *datBlockHeader,
	r *bytes.Reader) ([]byte, error) {

	entries := make([]standardBlockEntry, header.NumBlocks)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return nil, corrupt("dat block", "truncated sub-block table")
		}
	}

	out := make([]byte, 0, header.UncompressedSize)
	for i, entry := range entries {
		decoded, err := decodeSubBlock(data,
			base+uint64(header.HeaderSize)+uint64(entry.Offset))
		if err != nil {
			return nil, err
		}
		if len(decoded) != int(entry.DecompressedSize) {
			return nil, corrupt("dat block",
				"sub-block %d decoded %d bytes, table says %d",
				i, len(decoded), entry.DecompressedSize)
		}
		out = append(out, decoded...)
	}

	if len(out) != int(header.UncompressedSize) {
		return nil, corrupt("dat block",
			"decoded %d bytes, header says %d", len(out),
			header.UncompressedSize)
	}
	return out, nil
}

// decodeTextureBlock reassembles a texture asset: the raw texture header
// followed by the decoded bytes of each mip level.
func decodeTextureBlock(data []byte, base uint64, header *datBlockHeader,
	r *bytes.Reader) ([]byte, error) {

	lods := make([]textureLodBlock, header.NumBlocks)
	for i := range lods {
		if err := binary.Read(r, binary.LittleEndian, &lods[i]); err != nil {
			return nil, corrupt("dat block", "truncated mip table")
		}
	}

	// One u16 per sub-block carrying its stored size, used to walk from one
	// sub-block to the next.
	var totalBlocks uint32
	for _, lod := range lods {
		totalBlocks += lod.BlockCount
	}
	subSizes := make([]uint16, totalBlocks)
	if err := binary.Read(r, binary.LittleEndian, &subSizes); err != nil {
		return nil, corrupt("dat block", "truncated sub-block size table")
	}

	out := make([]byte, 0, header.UncompressedSize)

	// The texture header itself is stored uncompressed at the head of the
	// payload region, before the first mip's sub-blocks.
	if len(lods) > 0 {
		headerStart := base + uint64(header.HeaderSize)
		headerEnd := headerStart + uint64(lods[0].CompressedOffset)
		if headerEnd > uint64(len(data)) || headerEnd < headerStart {
			return nil, corrupt("dat block", "texture header beyond file end")
		}
		out = append(out, data[headerStart:headerEnd]...)
	}

	next := 0
	for _, lod := range lods {
		running := base + uint64(header.HeaderSize) + uint64(lod.CompressedOffset)
		for i := uint32(0); i < lod.BlockCount; i++ {
			decoded, err := decodeSubBlock(data, running)
			if err != nil {
				return nil, err
			}
			out = append(out, decoded...)
			running += uint64(subSizes[next])
			next++
		}
	}

	if len(out) != int(header.UncompressedSize) {
		return nil, corrupt("dat block",
			"decoded %d bytes, header says %d", len(out),
			header.UncompressedSize)
	}
	return out, nil
}

// modelBlock is the fixed-layout header of a model type block. Sizes,
// offsets, block indices and block counts come in stack / runtime /
// per-LOD vertex / per-LOD edge geometry / per-LOD index order.
type modelBlock struct {
	Version uint32

	UncompressedStackSize   uint32
	UncompressedRuntimeSize uint32
	UncompressedVertexSize  [3]uint32
	UncompressedEdgeSize    [3]uint32
	UncompressedIndexSize   [3]uint32

	CompressedStackSize   uint32
	CompressedRuntimeSize uint32
	CompressedVertexSize  [3]uint32
	CompressedEdgeSize    [3]uint32
	CompressedIndexSize   [3]uint32

	StackOffset   uint32
	RuntimeOffset uint32
	VertexOffset  [3]uint32
	EdgeOffset    [3]uint32
	IndexOffset   [3]uint32

	StackBlockIndex   uint16
	RuntimeBlockIndex uint16
	VertexBlockIndex  [3]uint16
	EdgeBlockIndex    [3]uint16
	IndexBlockIndex   [3]uint16

	StackBlockCount   uint16
	RuntimeBlockCount uint16
	VertexBlockCount  [3]uint16
	EdgeBlockCount    [3]uint16
	IndexBlockCount   [3]uint16

	VertexDeclarationCount uint16
	MaterialCount          uint16

	LodCount                    uint8
	IndexBufferStreamingEnabled uint8
	EdgeGeometryEnabled         uint8
	Padding                     uint8
}

// decodeModelBlock reassembles a model asset into the MDL on-disk layout:
// file header, stack, runtime, then per-LOD vertex and index regions.
func decodeModelBlock(data []byte, base uint64, header *datBlockHeader,
	r *bytes.Reader) ([]byte, error) {

	var block modelBlock
	if err := binary.Read(r, binary.LittleEndian, &block); err != nil {
		return nil, corrupt("dat block", "truncated model block header")
	}

	totalBlocks := uint32(block.StackBlockCount) + uint32(block.RuntimeBlockCount)
	for i := 0; i < 3; i++ {
		totalBlocks += uint32(block.VertexBlockCount[i])
		totalBlocks += uint32(block.EdgeBlockCount[i])
		totalBlocks += uint32(block.IndexBlockCount[i])
	}
	subSizes := make([]uint16, totalBlocks)
	if err := binary.Read(r, binary.LittleEndian, &subSizes); err != nil {
		return nil, corrupt("dat block", "truncated sub-block size table")
	}

	// The file header is synthesized below once the region offsets within
	// the output are known.
	out := make([]byte, mdlFileHeaderSize, header.UncompressedSize)

	// decodeRegion walks blockCount sub-blocks beginning at regionOffset,
	// appending their decoded bytes. subSizes advances one entry per block.
	next := 0
	decodeRegion := func(regionOffset uint32, blockCount uint16) (uint32, error) {
		start := len(out)
		running := base + uint64(header.HeaderSize) + uint64(regionOffset)
		for i := uint16(0); i < blockCount; i++ {
			decoded, err := decodeSubBlock(data, running)
			if err != nil {
				return 0, err
			}
			out = append(out, decoded...)
			running += uint64(subSizes[next])
			next++
		}
		return uint32(len(out) - start), nil
	}

	stackSize, err := decodeRegion(block.StackOffset, block.StackBlockCount)
	if err != nil {
		return nil, err
	}
	runtimeSize, err := decodeRegion(block.RuntimeOffset, block.RuntimeBlockCount)
	if err != nil {
		return nil, err
	}

	var vertexOffsets, indexOffsets [3]uint32
	var vertexSizes, indexSizes [3]uint32
	for i := 0; i < 3; i++ {
		if block.VertexBlockCount[i] > 0 {
			vertexOffsets[i] = uint32(len(out))
			vertexSizes[i], err = decodeRegion(block.VertexOffset[i],
				block.VertexBlockCount[i])
			if err != nil {
				return nil, err
			}
		}
		// Edge geometry decodes into the gap between the vertex and index
		// regions; it is carried but not separately addressed.
		if block.EdgeBlockCount[i] > 0 {
			if _, err = decodeRegion(block.EdgeOffset[i],
				block.EdgeBlockCount[i]); err != nil {
				return nil, err
			}
		}
		if block.IndexBlockCount[i] > 0 {
			indexOffsets[i] = uint32(len(out))
			indexSizes[i], err = decodeRegion(block.IndexOffset[i],
				block.IndexBlockCount[i])
			if err != nil {
				return nil, err
			}
		}
	}

	fileHeader := ModelFileHeader{
		Version:                block.Version,
		StackSize:              stackSize,
		RuntimeSize:            runtimeSize,
		VertexDeclarationCount: block.VertexDeclarationCount,
		MaterialCount:          block.MaterialCount,
		VertexOffsets:          vertexOffsets,
		IndexOffsets:           indexOffsets,
		VertexBufferSize:       vertexSizes,
		IndexBufferSize:        indexSizes,
		LodCount:               block.LodCount,
		IndexBufferStreamingEnabled: block.IndexBufferStreamingEnabled != 0,
		HasEdgeGeometry:             block.EdgeGeometryEnabled != 0,
	}
	headerBuf := new(bytes.Buffer)
	fileHeader.write(headerBuf)
	copy(out[:mdlFileHeaderSize], headerBuf.Bytes())

	if len(out) != int(header.UncompressedSize) {
		return nil, corrupt("dat block",
			"decoded %d bytes, header says %d", len(out),
			header.UncompressedSize)
	}
	return out, nil
}

// decodeSubBlock decodes the raw or DEFLATE-compressed sub-block at the
// given absolute offset.
func decodeSubBlock(data []byte, offset uint64) ([]byte, error) {
	if offset+16 > uint64(len(data)) {
		return nil, corrupt("dat sub-block", "header beyond file end")
	}

	r := bytes.NewReader(data[offset:])
	var header datSubBlockHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, corrupt("dat sub-block", "truncated header")
	}

	if offset+uint64(header.Size) > uint64(len(data)) {
		return nil, corrupt("dat sub-block", "header size beyond file end")
	}
	payload := data[offset+uint64(header.Size):]

	if header.CompressedLength == compressedLengthRaw {
		if uint64(len(payload)) < uint64(header.DecompressedLength) {
			return nil, corrupt("dat sub-block", "raw payload truncated")
		}
		out := make([]byte, header.DecompressedLength)
		copy(out, payload)
		return out, nil
	}

	if uint64(len(payload)) < uint64(header.CompressedLength) {
		return nil, corrupt("dat sub-block", "compressed payload truncated")
	}

	fr := flate.NewReader(bytes.NewReader(payload[:header.CompressedLength]))
	defer fr.Close()

	out := make([]byte, header.DecompressedLength)
	if _, err := io.ReadFull(fr, out); err != nil {
		return nil, corrupt("dat sub-block", "inflate: %v", err)
	}
	return out, nil
}
