// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"hash/crc32"
	"os"
	"strings"
)

// Platform selects the platform tag used in pack filenames.
type Platform int

// Supported platforms.
const (
	PlatformWin32 Platform = iota
	PlatformPS3
	PlatformPS4
)

func (p Platform) String() string {
	switch p {
	case PlatformWin32:
		return "win32"
	case PlatformPS3:
		return "ps3"
	case PlatformPS4:
		return "ps4"
	}
	return "win32"
}

// Language identifies the localization of an Excel data page.
type Language uint16

// Known languages. LanguageNone marks sheets that are language-neutral.
const (
	LanguageNone Language = iota
	LanguageJapanese
	LanguageEnglish
	LanguageGerman
	LanguageFrench
	LanguageChineseSimplified
	LanguageChineseTraditional
	LanguageKorean
)

// Code returns the short language tag used in EXD filenames. The tag is
// empty for language-neutral sheets.
func (l Language) Code() string {
	switch l {
	case LanguageJapanese:
		return "ja"
	case LanguageEnglish:
		return "en"
	case LanguageGerman:
		return "de"
	case LanguageFrench:
		return "fr"
	case LanguageChineseSimplified:
		return "chs"
	case LanguageChineseTraditional:
		return "cht"
	case LanguageKorean:
		return "ko"
	}
	return ""
}

// CalculateHash computes the 64-bit index key of a logical asset path.
// The path is lower-cased and split at the final '/'; the folder and file
// halves are CRC-32 hashed independently (reflected, poly 0xEDB88320) and
// concatenated as (folder << 32) | file. A path with no '/' has an empty
// folder half, whose CRC is 0.
func CalculateHash(path string) uint64 {
	lowercase := strings.ToLower(path)

	var folder, file string
	if pos := strings.LastIndex(lowercase, "/"); pos >= 0 {
		folder = lowercase[:pos]
		file = lowercase[pos+1:]
	} else {
		file = lowercase
	}

	folderCrc := crc32.ChecksumIEEE([]byte(folder))
	fileCrc := crc32.ChecksumIEEE([]byte(file))

	return uint64(folderCrc)<<32 | uint64(fileCrc)
}

// readVersion reads a dotted version string such as "2012.01.01.0000.0000"
// from a .ver or .bck file. It returns an empty string when the file is
// missing or does not hold a plausible version.
func readVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	version := strings.TrimSpace(string(data))
	if !validVersion(version) {
		return ""
	}
	return version
}

// validVersion reports whether s looks like a dotted date version string.
func validVersion(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case r < '0' || r > '9':
			return false
		}
	}
	return dots == 4
}
