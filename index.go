// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// sqPackMagic is the signature opening every index and data file.
var sqPackMagic = [8]byte{'S', 'q', 'P', 'a', 'c', 'k', 0, 0}

const (
	sqPackHeaderSize = 0x400
	indexHeaderSize  = 0x400
	indexEntrySize   = 16
)

// SqPackHeader is the fixed header opening every SqPack file.
type SqPackHeader struct {
	// Magic signature, "SqPack\0\0".
	Magic [8]byte `json:"magic"`

	// PlatformID of the pack.
	PlatformID uint8 `json:"platform_id"`

	Padding [3]byte `json:"-"`

	// Size of this header region in bytes.
	Size uint32 `json:"size"`

	// Version of the pack format.
	Version uint32 `json:"version"`

	// Type of the file, 2 for index files.
	Type uint32 `json:"type"`
}

// IndexHeader locates the entry table within an index file.
type IndexHeader struct {
	// Size of this header region in bytes.
	Size uint32 `json:"size"`

	// Version of the index layout.
	Version uint32 `json:"version"`

	// IndexDataOffset is the absolute offset of the entry table.
	IndexDataOffset uint32 `json:"index_data_offset"`

	// IndexDataSize is the entry table size in bytes.
	IndexDataSize uint32 `json:"index_data_size"`
}

// IndexEntry maps one path hash to its location inside a data file. The
// on-disk form packs the data file id and the offset into one 32-bit
// bitfield; the raw word is preserved so an index can be re-serialized
// bit-exactly.
type IndexEntry struct {
	// Hash is the 64-bit path hash, see CalculateHash.
	Hash uint64 `json:"hash"`

	// Bitfield packs the data file id in bits 1..3 and the offset, as a
	// multiple of 128 bytes, in the upper bits.
	Bitfield uint32 `json:"bitfield"`
}

// DataFileID extracts the .dat<N> suffix number addressed by the entry.
func (e IndexEntry) DataFileID() uint32 {
	return (e.Bitfield >> 1) & 0b111
}

// Offset extracts the absolute byte offset within the data file.
func (e IndexEntry) Offset() uint64 {
	return uint64(e.Bitfield&^uint32(0xF)) * 8
}

// packIndexBitfield is the inverse of the DataFileID/Offset decode.
// offset must be a multiple of 128 bytes.
func packIndexBitfield(dataFileID uint32, offset uint64) uint32 {
	return uint32(offset/8) | (dataFileID&0b111)<<1
}

// IndexFile is the parsed form of one .index file. Entry order follows the
// on-disk order.
type IndexFile struct {
	SqPackHeader SqPackHeader `json:"sqpack_header"`
	IndexHeader  IndexHeader  `json:"index_header"`
	Entries      []IndexEntry `json:"entries"`
}

// ReadIndexFile opens and parses an index file from disk.
func ReadIndexFile(name string) (*IndexFile, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &IoError{Op: "open", Path: name, Err: err}
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &IoError{Op: "mmap", Path: name, Err: err}
	}
	defer data.Unmap()

	return ParseIndex(data)
}

// ParseIndex parses an index file from a memory buffer.
func ParseIndex(data []byte) (*IndexFile, error) {
	r := bytes.NewReader(data)

	index := IndexFile{}
	if err := binary.Read(r, binary.LittleEndian, &index.SqPackHeader); err != nil {
		return nil, corrupt("index header", "truncated SqPack header")
	}
	if index.SqPackHeader.Magic != sqPackMagic {
		return nil, ErrBadSqPackMagic
	}
	if int64(index.SqPackHeader.Size) > int64(len(data)) {
		return nil, corrupt("index header", "header size 0x%x beyond file end",
			index.SqPackHeader.Size)
	}

	if _, err := r.Seek(int64(index.SqPackHeader.Size), 0); err != nil {
		return nil, corrupt("index header", "bad header size 0x%x",
			index.SqPackHeader.Size)
	}
	if err := binary.Read(r, binary.LittleEndian, &index.IndexHeader); err != nil {
		return nil, corrupt("index header", "truncated index header")
	}

	offset := int64(index.IndexHeader.IndexDataOffset)
	size := int64(index.IndexHeader.IndexDataSize)
	if offset < 0 || offset+size > int64(len(data)) {
		return nil, corrupt("index entries",
			"entry table [0x%x, 0x%x) beyond file end", offset, offset+size)
	}

	count := size / indexEntrySize
	index.Entries = make([]IndexEntry, 0, count)

	if _, err := r.Seek(offset, 0); err != nil {
		return nil, corrupt("index entries", "bad entry table offset 0x%x", offset)
	}
	for i := int64(0); i < count; i++ {
		var entry struct {
			Hash     uint64
			Bitfield uint32
			Padding  uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
			return nil, corrupt("index entries", "truncated at entry %d", i)
		}
		index.Entries = append(index.Entries, IndexEntry{
			Hash:     entry.Hash,
			Bitfield: entry.Bitfield,
		})
	}

	return &index, nil
}

// Find returns the entry matching hash. Entries are scanned in order of
// appearance; the table is not required to be sorted.
func (idx *IndexFile) Find(hash uint64) (IndexEntry, bool) {
	for _, entry := range idx.Entries {
		if entry.Hash == hash {
			return entry, true
		}
	}
	return IndexEntry{}, false
}

// Contains reports whether the index holds an entry for hash.
func (idx *IndexFile) Contains(hash uint64) bool {
	_, ok := idx.Find(hash)
	return ok
}

// Write re-serializes the index. Parsing the result yields an IndexFile
// equal to idx, entries preserved in order.
func (idx *IndexFile) Write() []byte {
	entrySize := uint32(len(idx.Entries) * indexEntrySize)

	header := idx.SqPackHeader
	header.Magic = sqPackMagic
	if header.Size == 0 {
		header.Size = sqPackHeaderSize
	}

	indexHeader := idx.IndexHeader
	if indexHeader.Size == 0 {
		indexHeader.Size = indexHeaderSize
	}
	indexHeader.IndexDataOffset = header.Size + indexHeader.Size
	indexHeader.IndexDataSize = entrySize

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(make([]byte, int(header.Size)-buf.Len()))

	_ = binary.Write(buf, binary.LittleEndian, indexHeader)
	buf.Write(make([]byte, int(header.Size+indexHeader.Size)-buf.Len()))

	for _, entry := range idx.Entries {
		_ = binary.Write(buf, binary.LittleEndian, entry.Hash)
		_ = binary.Write(buf, binary.LittleEndian, entry.Bitfield)
		_ = binary.Write(buf, binary.LittleEndian, uint32(0))
	}

	// Trailing alignment carried over from the original tooling; entries
	// are 16 bytes so this is normally zero.
	padding := 16 - buf.Len()%16
	if padding == 16 {
		padding = 0
	}
	buf.Write(make([]byte, padding))

	return buf.Bytes()
}
