// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// EXLEntry is one line of the root sheet listing.
type EXLEntry struct {
	// Name of the sheet, e.g. "Item".
	Name string

	// ID of the sheet, -1 for unnumbered sheets.
	ID int
}

// EXL is the root listing enumerating every Excel sheet by name.
type EXL struct {
	// Version from the EXLT preamble line.
	Version int

	Entries []EXLEntry
}

// ParseEXL parses the line-oriented "name,id" root listing.
func ParseEXL(data []byte) (*EXL, error) {
	exl := EXL{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		name, idText, found := strings.Cut(line, ",")
		if !found {
			return nil, corrupt("exl", "line without separator: %q", line)
		}

		id, err := strconv.Atoi(idText)
		if err != nil {
			return nil, corrupt("exl", "bad id on line %q", line)
		}

		if name == "EXLT" {
			exl.Version = id
			continue
		}
		exl.Entries = append(exl.Entries, EXLEntry{Name: name, ID: id})
	}

	if err := scanner.Err(); err != nil {
		return nil, corrupt("exl", "read: %v", err)
	}
	return &exl, nil
}

// Write re-serializes the listing in the on-disk line format.
func (e *EXL) Write() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("EXLT," + strconv.Itoa(e.Version) + "\r\n")
	for _, entry := range e.Entries {
		buf.WriteString(entry.Name + "," + strconv.Itoa(entry.ID) + "\r\n")
	}
	return buf.Bytes()
}
