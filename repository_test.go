// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import "testing"

func TestPackFilenames(t *testing.T) {

	tests := []struct {
		repo       Repository
		cat        Category
		dataFileID uint32
		wantIndex  string
		wantDat    string
	}{
		{Repository{Name: "ffxiv"}, CategoryCommon, 0,
			"000000.win32.index", "000000.win32.dat0"},
		{Repository{Name: "ffxiv"}, CategoryEXD, 0,
			"0a0000.win32.index", "0a0000.win32.dat0"},
		{Repository{Name: "ex1", ExpansionNumber: 1}, CategoryChara, 2,
			"040100.win32.index", "040100.win32.dat2"},
		{Repository{Name: "ex2", ExpansionNumber: 2}, CategoryBG, 1,
			"020200.win32.index", "020200.win32.dat1"},
	}

	for _, tt := range tests {
		t.Run(tt.wantIndex, func(t *testing.T) {
			got := tt.repo.IndexFilename(PlatformWin32, tt.cat)
			if got != tt.wantIndex {
				t.Errorf("IndexFilename got %q, want %q", got, tt.wantIndex)
			}
			got = tt.repo.DatFilename(PlatformWin32, tt.cat, tt.dataFileID)
			if got != tt.wantDat {
				t.Errorf("DatFilename got %q, want %q", got, tt.wantDat)
			}
		})
	}
}

func TestCategoryFromName(t *testing.T) {

	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"common", CategoryCommon, true},
		{"exd", CategoryEXD, true},
		{"sqpack_test", CategorySqPackTest, true},
		{"debug", CategoryDebug, true},
		{"what", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := CategoryFromName(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("CategoryFromName(%q) got (%v, %v), want (%v, %v)",
				tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewExpansionRepository(t *testing.T) {

	tests := []struct {
		path string
		want int
		wantNil bool
	}{
		{"/game/sqpack/ex1", 1, false},
		{"/game/sqpack/ex5", 5, false},
		{"/game/sqpack/ffxiv", 0, true},
		{"/game/sqpack/exfoo", 0, true},
		{"/game/sqpack/ex0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			repo := newExpansionRepository(tt.path)
			if tt.wantNil {
				if repo != nil {
					t.Fatalf("newExpansionRepository(%q) got %+v, want nil",
						tt.path, repo)
				}
				return
			}
			if repo == nil {
				t.Fatalf("newExpansionRepository(%q) got nil", tt.path)
			}
			if repo.ExpansionNumber != tt.want {
				t.Errorf("expansion number got %d, want %d",
					repo.ExpansionNumber, tt.want)
			}
		})
	}
}
