// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"io"
)

var exhMagic = [4]byte{'E', 'X', 'H', 'F'}

// ColumnDataType encodes the cell type of one sheet column.
type ColumnDataType uint16

// Column data types. Types 0x19 and above are single bits packed into a
// shared byte; the bit index is the type value minus PackedBool0.
const (
	ColumnTypeString  ColumnDataType = 0x0
	ColumnTypeBool    ColumnDataType = 0x1
	ColumnTypeInt8    ColumnDataType = 0x2
	ColumnTypeUInt8   ColumnDataType = 0x3
	ColumnTypeInt16   ColumnDataType = 0x4
	ColumnTypeUInt16  ColumnDataType = 0x5
	ColumnTypeInt32   ColumnDataType = 0x6
	ColumnTypeUInt32  ColumnDataType = 0x7
	ColumnTypeFloat32 ColumnDataType = 0x9
	ColumnTypeInt64   ColumnDataType = 0xa
	ColumnTypeUInt64  ColumnDataType = 0xb

	ColumnTypePackedBool0 ColumnDataType = 0x19
)

// ExcelColumnDefinition describes one column: its cell type and the byte
// offset of its fixed-width cell within a row.
type ExcelColumnDefinition struct {
	Type   ColumnDataType `json:"type"`
	Offset uint16         `json:"offset"`
}

// ExcelDataPagination partitions a sheet's rows into pages; each page is a
// separate EXD file.
type ExcelDataPagination struct {
	StartRow uint32 `json:"start_row"`
	RowCount uint32 `json:"row_count"`
}

// exhHeader is the fixed, big-endian header of a sheet header file.
type exhHeader struct {
	Magic         [4]byte
	Version       uint16
	DataOffset    uint16
	ColumnCount   uint16
	PageCount     uint16
	LanguageCount uint16
	Unknown1      uint16
	Unknown2      uint32
	RowCount      uint32
	Unknown3      [8]byte
}

// EXH is the parsed header of one Excel sheet: the column schema, the row
// pagination, and the languages the sheet is available in.
type EXH struct {
	// Version of the header layout.
	Version uint16 `json:"version"`

	// DataOffset is the size of a row's fixed-width cell region; the
	// string heap begins there.
	DataOffset uint16 `json:"data_offset"`

	// RowCount across all pages.
	RowCount uint32 `json:"row_count"`

	Columns   []ExcelColumnDefinition `json:"columns"`
	Pages     []ExcelDataPagination   `json:"pages"`
	Languages []Language              `json:"languages"`
}

// ParseEXH parses a sheet header. The on-disk form is big-endian.
func ParseEXH(data []byte) (*EXH, error) {
	r := bytes.NewReader(data)

	var header exhHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, corrupt("exh", "truncated header")
	}
	if header.Magic != exhMagic {
		return nil, corrupt("exh", "bad magic %q", header.Magic)
	}

	exh := EXH{
		Version:    header.Version,
		DataOffset: header.DataOffset,
		RowCount:   header.RowCount,
		Columns:    make([]ExcelColumnDefinition, header.ColumnCount),
		Pages:      make([]ExcelDataPagination, header.PageCount),
		Languages:  make([]Language, header.LanguageCount),
	}

	if err := binary.Read(r, binary.BigEndian, &exh.Columns); err != nil {
		return nil, corrupt("exh", "truncated column table")
	}
	if err := binary.Read(r, binary.BigEndian, &exh.Pages); err != nil {
		return nil, corrupt("exh", "truncated page table")
	}
	for i := range exh.Languages {
		// Each language is stored as its code byte plus a padding byte.
		var lang [2]byte
		if _, err := io.ReadFull(r, lang[:]); err != nil {
			return nil, corrupt("exh", "truncated language table")
		}
		exh.Languages[i] = Language(lang[0])
	}

	return &exh, nil
}

// HasLanguage reports whether the sheet carries a page set for language.
func (e *EXH) HasLanguage(language Language) bool {
	for _, l := range e.Languages {
		if l == language {
			return true
		}
	}
	return false
}
