// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

func TestCalculateHash(t *testing.T) {

	tests := []struct {
		in     string
		folder string
		file   string
	}{
		{"exd/root.exl", "exd", "root.exl"},
		{"chara/equipment/e0000/model/c0101e0000_top.mdl",
			"chara/equipment/e0000/model", "c0101e0000_top.mdl"},
		{"root.exl", "", "root.exl"},
		{"exd/", "exd", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			want := uint64(crc32.ChecksumIEEE([]byte(tt.folder)))<<32 |
				uint64(crc32.ChecksumIEEE([]byte(tt.file)))
			if got := CalculateHash(tt.in); got != want {
				t.Errorf("CalculateHash(%q) got 0x%x, want 0x%x",
					tt.in, got, want)
			}
		})
	}
}

func TestCalculateHashCaseFolding(t *testing.T) {

	tests := []struct {
		upper string
		lower string
	}{
		{"EXD/ROOT.EXL", "exd/root.exl"},
		{"Chara/Equipment/E0000/Model/C0101E0000_Top.mdl",
			"chara/equipment/e0000/model/c0101e0000_top.mdl"},
	}

	for _, tt := range tests {
		if CalculateHash(tt.upper) != CalculateHash(tt.lower) {
			t.Errorf("CalculateHash(%q) != CalculateHash(%q)",
				tt.upper, tt.lower)
		}
	}
}

func TestReadVersion(t *testing.T) {

	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"good.ver", "2012.01.01.0000.0000", "2012.01.01.0000.0000"},
		{"trailing.ver", "2023.09.23.0000.0001\n", "2023.09.23.0000.0001"},
		{"garbage.ver", "not a version", ""},
		{"short.ver", "2012.01", ""},
		{"empty.ver", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if got := readVersion(path); got != tt.want {
				t.Errorf("readVersion(%s) got %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	if got := readVersion(filepath.Join(dir, "missing.ver")); got != "" {
		t.Errorf("readVersion(missing) got %q, want empty", got)
	}
}
