// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"

	"github.com/LouisBrunner/Physis/log"
)

// sentinelVersion is written when a repository is rebuilt from scratch.
// It is the earliest known valid date.
const sentinelVersion = "2012.01.01.0000.0000"

// RepairAction describes how a damaged repository can be brought back to a
// usable state.
type RepairAction int

const (
	// RepairActionMissing means the .ver file is gone and no backup
	// exists. Repair destroys and recreates the repository directory.
	RepairActionMissing RepairAction = iota

	// RepairActionCanRestore means a .bck file holds a valid version
	// string that can be copied back into place.
	RepairActionCanRestore
)

// Options configures a GameData instance.
type Options struct {
	// Platform tag used in pack filenames, PlatformWin32 by default.
	Platform Platform

	// A custom logger.
	Logger log.Logger
}

// GameData is the facade over a game install: it resolves logical asset
// paths to repositories and categories, memoizes parsed index files, and
// routes hits through the data file reader.
//
// A GameData is meant for single-threaded use; concurrent callers must
// wrap it with their own synchronization.
type GameData struct {
	// GameDirectory is the install directory containing sqpack/.
	GameDirectory string

	// Repositories discovered by the last ReloadRepositories call, base
	// repository first.
	Repositories []*Repository

	platform   Platform
	indexFiles map[string]*IndexFile
	logger     *log.Helper
}

// NewGameData opens an existing game install. The directory must exist;
// individual pack files are not validated. Repositories are not scanned
// until ReloadRepositories is called.
func NewGameData(directory string, opts *Options) (*GameData, error) {
	if _, err := os.Stat(directory); err != nil {
		return nil, &IoError{Op: "stat", Path: directory, Err: err}
	}

	if opts == nil {
		opts = &Options{}
	}

	var logger log.Logger
	if opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		logger = log.NewFilter(logger, log.FilterLevel(log.LevelError))
	} else {
		logger = opts.Logger
	}

	return &GameData{
		GameDirectory: directory,
		platform:      opts.Platform,
		indexFiles:    make(map[string]*IndexFile),
		logger:        log.NewHelper(logger),
	}, nil
}

// ReloadRepositories rescans sqpack/ for the base repository and every
// ex<N> expansion. This is cheap; no pack file is read yet.
func (g *GameData) ReloadRepositories() {
	g.Repositories = g.Repositories[:0]

	g.Repositories = append(g.Repositories, newBaseRepository(g.GameDirectory))

	sqpackDir := filepath.Join(g.GameDirectory, "sqpack")
	entries, err := os.ReadDir(sqpackDir)
	if err != nil {
		g.logger.Debugf("reading %s failed: %v", sqpackDir, err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if repo := newExpansionRepository(filepath.Join(sqpackDir,
			entry.Name())); repo != nil {
			g.Repositories = append(g.Repositories, repo)
		}
	}

	sort.Slice(g.Repositories, func(i, j int) bool {
		return g.Repositories[i].less(g.Repositories[j])
	})
}

// ParseRepositoryCategory resolves a logical asset path to the repository
// and category addressing it. The first token is either a repository name
// followed by a category, or a category resolved against the base
// repository. Note that a first token which happens to be a valid category
// name always resolves against the base repository, even when the caller
// may have intended an unknown expansion.
func (g *GameData) ParseRepositoryCategory(path string) (*Repository, Category, error) {
	tokens := strings.Split(path, "/")
	if len(tokens) < 2 || len(g.Repositories) == 0 {
		return nil, 0, ErrUnknownCategory
	}

	for _, repo := range g.Repositories {
		if repo.Name == tokens[0] {
			cat, ok := CategoryFromName(tokens[1])
			if !ok {
				return nil, 0, ErrUnknownCategory
			}
			return repo, cat, nil
		}
	}

	cat, ok := CategoryFromName(tokens[0])
	if !ok {
		return nil, 0, ErrUnknownCategory
	}
	return g.Repositories[0], cat, nil
}

func (g *GameData) indexPath(path string) (string, error) {
	repo, cat, err := g.ParseRepositoryCategory(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(g.GameDirectory, "sqpack", repo.Name,
		repo.IndexFilename(g.platform, cat)), nil
}

// cachedIndex parses and memoizes the index file at indexPath. Parsed
// indexes are never invalidated during the session; the pack files are
// assumed read-only underneath the facade.
func (g *GameData) cachedIndex(indexPath string) (*IndexFile, error) {
	if index, ok := g.indexFiles[indexPath]; ok {
		return index, nil
	}
	index, err := ReadIndexFile(indexPath)
	if err != nil {
		return nil, err
	}
	g.indexFiles[indexPath] = index
	return index, nil
}

// Exists reports whether an asset is present at the given logical path.
func (g *GameData) Exists(path string) bool {
	indexPath, err := g.indexPath(path)
	if err != nil {
		return false
	}
	index, err := g.cachedIndex(indexPath)
	if err != nil {
		return false
	}
	return index.Contains(CalculateHash(path))
}

// Extract decodes the asset at the given logical path into an in-memory
// buffer. The buffer usually has to be parsed further by one of the
// codecs. ErrNotFound is returned when no index entry matches.
func (g *GameData) Extract(path string) ([]byte, error) {
	g.logger.Debugf("extracting %s", path)

	indexPath, err := g.indexPath(path)
	if err != nil {
		return nil, err
	}
	index, err := g.cachedIndex(indexPath)
	if err != nil {
		return nil, err
	}

	entry, ok := index.Find(CalculateHash(path))
	if !ok {
		return nil, ErrNotFound
	}

	repo, cat, err := g.ParseRepositoryCategory(path)
	if err != nil {
		return nil, err
	}
	datPath := filepath.Join(g.GameDirectory, "sqpack", repo.Name,
		repo.DatFilename(g.platform, cat, entry.DataFileID()))

	dat, err := OpenDat(datPath)
	if err != nil {
		return nil, err
	}
	return dat.ReadFromOffset(entry.Offset())
}

// SheetNames lists every Excel sheet named by the root listing.
func (g *GameData) SheetNames() ([]string, error) {
	data, err := g.Extract("exd/root.exl")
	if err != nil {
		return nil, err
	}
	exl, err := ParseEXL(data)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(exl.Entries))
	for _, entry := range exl.Entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

// SheetHeader extracts and parses the EXH header of the named sheet. The
// name must appear in the root listing.
func (g *GameData) SheetHeader(name string) (*EXH, error) {
	names, err := g.SheetNames()
	if err != nil {
		return nil, err
	}

	for _, candidate := range names {
		if candidate == name {
			data, err := g.Extract(fmt.Sprintf("exd/%s.exh",
				strings.ToLower(name)))
			if err != nil {
				return nil, err
			}
			return ParseEXH(data)
		}
	}
	return nil, ErrNotFound
}

// SheetPage extracts and parses one page of rows of the named sheet for
// one language.
func (g *GameData) SheetPage(name string, exh *EXH, language Language, page int) (*EXD, error) {
	if page < 0 || page >= len(exh.Pages) {
		return nil, ErrNotFound
	}

	path := "exd/" + EXDFilename(name, language, exh.Pages[page])
	data, err := g.Extract(path)
	if err != nil {
		return nil, err
	}
	return ParseEXD(exh, data)
}

// ApplyPatch applies an official incremental patch file to the game
// directory.
func (g *GameData) ApplyPatch(patchPath string) error {
	return ApplyPatch(g.GameDirectory, patchPath)
}

// NeedsRepair inspects every repository and lists the ones whose .ver file
// is missing or unreadable, together with the applicable repair action.
// A nil slice means no repair is needed.
func (g *GameData) NeedsRepair() []RepositoryRepair {
	var repairs []RepositoryRepair
	for _, repo := range g.Repositories {
		if repo.Version != "" {
			continue
		}

		action := RepairActionMissing
		bckPath := filepath.Join(g.GameDirectory, "sqpack", repo.Name,
			repo.Name+".bck")
		if readVersion(bckPath) != "" {
			action = RepairActionCanRestore
		}
		repairs = append(repairs, RepositoryRepair{
			Repository: repo,
			Action:     action,
		})
	}
	return repairs
}

// RepositoryRepair pairs a damaged repository with its repair action.
type RepositoryRepair struct {
	Repository *Repository
	Action     RepairAction
}

// PerformRepair executes the given repair actions. The Missing action is
// destructive: the repository directory is removed, recreated empty, and
// stamped with the earliest known version, on the assumption that a
// repository without a version file has untrustworthy pack files anyway.
//
// Repairs are transactional per repository: the first filesystem failure
// aborts with a RepairError naming the repository, and repositories
// repaired before it stay repaired.
func (g *GameData) PerformRepair(repairs []RepositoryRepair) error {
	for _, repair := range repairs {
		repo := repair.Repository
		repoPath := filepath.Join(g.GameDirectory, "sqpack", repo.Name)
		verPath := filepath.Join(repoPath, repo.Name+".ver")

		var version string
		switch repair.Action {
		case RepairActionMissing:
			g.logger.Warnf("rebuilding repository %s from scratch", repo.Name)
			if err := os.RemoveAll(repoPath); err != nil {
				return &RepairError{Repository: repo, Err: err}
			}
			if err := os.MkdirAll(repoPath, 0o755); err != nil {
				return &RepairError{Repository: repo, Err: err}
			}
			version = sentinelVersion
		case RepairActionCanRestore:
			bckPath := filepath.Join(repoPath, repo.Name+".bck")
			version = readVersion(bckPath)
			if version == "" {
				return &RepairError{Repository: repo,
					Err: fmt.Errorf("backup version file %s vanished", bckPath)}
			}
		}

		if err := renameio.WriteFile(verPath, []byte(version), 0o644); err != nil {
			return &RepairError{Repository: repo, Err: err}
		}
	}
	return nil
}
