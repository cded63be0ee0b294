// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildEXH serializes a sheet header in its big-endian on-disk form.
func buildEXH(t *testing.T, exh *EXH) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, exhHeader{
		Magic:         exhMagic,
		Version:       exh.Version,
		DataOffset:    exh.DataOffset,
		ColumnCount:   uint16(len(exh.Columns)),
		PageCount:     uint16(len(exh.Pages)),
		LanguageCount: uint16(len(exh.Languages)),
		RowCount:      exh.RowCount,
	})
	_ = binary.Write(buf, binary.BigEndian, exh.Columns)
	_ = binary.Write(buf, binary.BigEndian, exh.Pages)
	for _, lang := range exh.Languages {
		buf.Write([]byte{byte(lang), 0})
	}
	return buf.Bytes()
}

func TestParseEXH(t *testing.T) {

	want := &EXH{
		Version:    3,
		DataOffset: 8,
		RowCount:   42,
		Columns: []ExcelColumnDefinition{
			{Type: ColumnTypeString, Offset: 0},
			{Type: ColumnTypeUInt16, Offset: 4},
			{Type: ColumnTypeBool, Offset: 6},
		},
		Pages: []ExcelDataPagination{
			{StartRow: 0, RowCount: 20},
			{StartRow: 20, RowCount: 22},
		},
		Languages: []Language{LanguageNone, LanguageEnglish, LanguageJapanese},
	}

	got, err := ParseEXH(buildEXH(t, want))
	if err != nil {
		t.Fatalf("ParseEXH failed, reason: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	if !got.HasLanguage(LanguageEnglish) {
		t.Error("HasLanguage(en) got false, want true")
	}
	if got.HasLanguage(LanguageKorean) {
		t.Error("HasLanguage(ko) got true, want false")
	}
}

func TestParseEXHBadMagic(t *testing.T) {

	data := make([]byte, 64)
	copy(data, "EXDF")
	if _, err := ParseEXH(data); err == nil {
		t.Error("ParseEXH got nil error, want bad magic")
	}
}

func TestParseEXHTruncated(t *testing.T) {

	exh := &EXH{
		Columns: []ExcelColumnDefinition{{Type: ColumnTypeBool, Offset: 0}},
		Pages:   []ExcelDataPagination{{StartRow: 0, RowCount: 1}},
	}
	data := buildEXH(t, exh)

	if _, err := ParseEXH(data[:len(data)-2]); err == nil {
		t.Error("ParseEXH got nil error, want truncation")
	}
}

func TestLanguageCodes(t *testing.T) {

	tests := []struct {
		lang Language
		want string
	}{
		{LanguageNone, ""},
		{LanguageJapanese, "ja"},
		{LanguageEnglish, "en"},
		{LanguageGerman, "de"},
		{LanguageFrench, "fr"},
		{LanguageChineseSimplified, "chs"},
		{LanguageKorean, "ko"},
	}

	for _, tt := range tests {
		if got := tt.lang.Code(); got != tt.want {
			t.Errorf("Code(%d) got %q, want %q", tt.lang, got, tt.want)
		}
	}
}
