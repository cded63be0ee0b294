// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Category tags an asset family. The numeric value is the stable code used
// to form pack filenames.
type Category uint8

// Known categories.
const (
	CategoryCommon     Category = 0x00
	CategoryBGCommon   Category = 0x01
	CategoryBG         Category = 0x02
	CategoryCut        Category = 0x03
	CategoryChara      Category = 0x04
	CategoryShader     Category = 0x05
	CategoryUI         Category = 0x06
	CategorySound      Category = 0x07
	CategoryVFX        Category = 0x08
	CategoryUIScript   Category = 0x09
	CategoryEXD        Category = 0x0a
	CategoryGameScript Category = 0x0b
	CategoryMusic      Category = 0x0c
	CategorySqPackTest Category = 0x12
	CategoryDebug      Category = 0x13
)

// categoryNames maps each path token to its category code. The inverse
// direction is total over the table, partial over the Category type.
var categoryNames = map[string]Category{
	"common":      CategoryCommon,
	"bgcommon":    CategoryBGCommon,
	"bg":          CategoryBG,
	"cut":         CategoryCut,
	"chara":       CategoryChara,
	"shader":      CategoryShader,
	"ui":          CategoryUI,
	"sound":       CategorySound,
	"vfx":         CategoryVFX,
	"ui_script":   CategoryUIScript,
	"exd":         CategoryEXD,
	"game_script": CategoryGameScript,
	"music":       CategoryMusic,
	"sqpack_test": CategorySqPackTest,
	"debug":       CategoryDebug,
}

// CategoryFromName resolves a path token to its category code.
func CategoryFromName(name string) (Category, bool) {
	c, ok := categoryNames[name]
	return c, ok
}

func (c Category) String() string {
	for name, code := range categoryNames {
		if code == c {
			return name
		}
	}
	return fmt.Sprintf("category(0x%02x)", uint8(c))
}

// Repository is one named group of SqPack sets under sqpack/: the base
// game or one expansion. Repositories are discovered by
// GameData.ReloadRepositories and immutable until the next reload.
type Repository struct {
	// Name of the repository directory, e.g. "ffxiv" or "ex1".
	Name string `json:"name"`

	// Version read from <name>.ver; empty when the file is missing or
	// unreadable.
	Version string `json:"version"`

	// ExpansionNumber is 0 for the base repository and N for exN.
	ExpansionNumber int `json:"expansion_number"`
}

// newBaseRepository builds the base repository from the game directory.
// The base pack files live in <game>/sqpack/ffxiv.
func newBaseRepository(gameDirectory string) *Repository {
	name := "ffxiv"
	return &Repository{
		Name: name,
		Version: readVersion(filepath.Join(gameDirectory, "sqpack", name,
			name+".ver")),
	}
}

// newExpansionRepository builds an expansion repository from its directory
// under sqpack/. It returns nil when the directory name is not ex<N>.
func newExpansionRepository(path string) *Repository {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "ex") {
		return nil
	}

	number, err := strconv.Atoi(name[2:])
	if err != nil || number < 1 {
		return nil
	}

	return &Repository{
		Name:            name,
		Version:         readVersion(filepath.Join(path, name+".ver")),
		ExpansionNumber: number,
	}
}

// less orders the base repository first and expansions by number.
func (r *Repository) less(other *Repository) bool {
	return r.ExpansionNumber < other.ExpansionNumber
}

// IndexFilename derives the on-disk index filename for a category, e.g.
// "040100.win32.index" for chara in ex1.
func (r *Repository) IndexFilename(platform Platform, cat Category) string {
	return fmt.Sprintf("%02x%02x00.%s.index", uint8(cat),
		r.ExpansionNumber, platform)
}

// DatFilename derives the on-disk data filename for a category and data
// file id, e.g. "040100.win32.dat0".
func (r *Repository) DatFilename(platform Platform, cat Category, dataFileID uint32) string {
	return fmt.Sprintf("%02x%02x00.%s.dat%d", uint8(cat),
		r.ExpansionNumber, platform, dataFileID)
}
