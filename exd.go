// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

var exdMagic = [4]byte{'E', 'X', 'D', 'F'}

// exdHeader is the fixed, big-endian header of a sheet data page.
type exdHeader struct {
	Magic     [4]byte
	Version   uint16
	Unknown1  uint16
	IndexSize uint32
	Unknown2  [20]byte
}

// exdRowLocator is one entry of the page's offset table.
type exdRowLocator struct {
	RowID  uint32
	Offset uint32
}

// exdRowHeader precedes every row payload.
type exdRowHeader struct {
	DataSize uint32
	RowCount uint16
}

// ColumnData is one decoded cell. Kind selects which of the value fields
// is meaningful.
type ColumnData struct {
	Kind ColumnDataType

	String string
	Bool   bool
	Int    int64
	UInt   uint64
	Float  float32
}

// ExcelRow is one decoded row: one ColumnData per column, in schema order.
type ExcelRow struct {
	RowID   uint32
	Columns []ColumnData
}

// EXD is one parsed page of rows for one language.
type EXD struct {
	Version uint16
	Rows    []ExcelRow
}

// EXDFilename derives the on-disk filename of one page for one language,
// e.g. "Item_0_en.exd", or "Item_0.exd" for language-neutral sheets.
func EXDFilename(name string, language Language, page ExcelDataPagination) string {
	code := language.Code()
	if code == "" {
		return fmt.Sprintf("%s_%d.exd", name, page.StartRow)
	}
	return fmt.Sprintf("%s_%d_%s.exd", name, page.StartRow, code)
}

// ParseEXD parses one data page against the sheet's header schema. The
// on-disk form is big-endian.
func ParseEXD(exh *EXH, data []byte) (*EXD, error) {
	r := bytes.NewReader(data)

	var header exdHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, corrupt("exd", "truncated header")
	}
	if header.Magic != exdMagic {
		return nil, corrupt("exd", "bad magic %q", header.Magic)
	}

	locators := make([]exdRowLocator, header.IndexSize/8)
	if err := binary.Read(r, binary.BigEndian, &locators); err != nil {
		return nil, corrupt("exd", "truncated offset table")
	}

	exd := EXD{
		Version: header.Version,
		Rows:    make([]ExcelRow, 0, len(locators)),
	}

	for _, locator := range locators {
		row, err := parseRow(exh, data, locator)
		if err != nil {
			return nil, err
		}
		exd.Rows = append(exd.Rows, row)
	}

	return &exd, nil
}

// parseRow decodes the fixed-width cells and heap strings of one row. The
// cell region starts 6 bytes past the row offset, after the row header;
// the string heap begins DataOffset bytes into the cell region.
func parseRow(exh *EXH, data []byte, locator exdRowLocator) (ExcelRow, error) {
	base := int(locator.Offset)
	if base+6 > len(data) {
		return ExcelRow{}, corrupt("exd", "row %d offset beyond page end",
			locator.RowID)
	}

	cells := base + 6
	row := ExcelRow{
		RowID:   locator.RowID,
		Columns: make([]ColumnData, 0, len(exh.Columns)),
	}

	for _, col := range exh.Columns {
		at := cells + int(col.Offset)
		cell, err := parseCell(exh, data, cells, at, col.Type)
		if err != nil {
			return ExcelRow{}, err
		}
		row.Columns = append(row.Columns, cell)
	}
	return row, nil
}

func parseCell(exh *EXH, data []byte, cells, at int, kind ColumnDataType) (ColumnData, error) {
	need := columnWidth(kind)
	if at+need > len(data) {
		return ColumnData{}, corrupt("exd", "cell at 0x%x beyond page end", at)
	}

	cell := ColumnData{Kind: kind}
	switch kind {
	case ColumnTypeString:
		heapOffset := binary.BigEndian.Uint32(data[at:])
		strAt := cells + int(exh.DataOffset) + int(heapOffset)
		end := strAt
		for end < len(data) && data[end] != 0 {
			end++
		}
		if end >= len(data) {
			return ColumnData{}, corrupt("exd",
				"unterminated string at 0x%x", strAt)
		}
		cell.String = string(data[strAt:end])
	case ColumnTypeBool:
		cell.Bool = data[at] != 0
	case ColumnTypeInt8:
		cell.Int = int64(int8(data[at]))
	case ColumnTypeUInt8:
		cell.UInt = uint64(data[at])
	case ColumnTypeInt16:
		cell.Int = int64(int16(binary.BigEndian.Uint16(data[at:])))
	case ColumnTypeUInt16:
		cell.UInt = uint64(binary.BigEndian.Uint16(data[at:]))
	case ColumnTypeInt32:
		cell.Int = int64(int32(binary.BigEndian.Uint32(data[at:])))
	case ColumnTypeUInt32:
		cell.UInt = uint64(binary.BigEndian.Uint32(data[at:]))
	case ColumnTypeFloat32:
		cell.Float = math.Float32frombits(binary.BigEndian.Uint32(data[at:]))
	case ColumnTypeInt64:
		cell.Int = int64(binary.BigEndian.Uint64(data[at:]))
	case ColumnTypeUInt64:
		cell.UInt = binary.BigEndian.Uint64(data[at:])
	default:
		if kind >= ColumnTypePackedBool0 {
			bit := uint(kind - ColumnTypePackedBool0)
			cell.Bool = data[at]&(1<<bit) != 0
			break
		}
		return ColumnData{}, corrupt("exd", "unknown column type 0x%x", kind)
	}
	return cell, nil
}

// columnWidth is the fixed cell width of a column type in bytes.
func columnWidth(kind ColumnDataType) int {
	switch kind {
	case ColumnTypeString, ColumnTypeInt32, ColumnTypeUInt32, ColumnTypeFloat32:
		return 4
	case ColumnTypeInt64, ColumnTypeUInt64:
		return 8
	case ColumnTypeInt16, ColumnTypeUInt16:
		return 2
	default:
		return 1
	}
}
