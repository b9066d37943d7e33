// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package namemap translates solver-internal identifiers in labels and
// nogoods to the nice names recorded by the modelling tool chain.
//
// The map is loaded from a paths file (tab-separated: identifier, nice
// name, path with location information) together with the model source
// the locations point into.
package namemap

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPathsFile is returned when the paths file cannot be parsed.
var ErrInvalidPathsFile = errors.New("namemap: invalid paths file")

// identRe matches a maximal identifier run inside free text.
var identRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)

// Location is a half-open source range in the model file
// (1-based line/column of start and end).
type Location struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// SymbolRecord is the information kept per identifier.
type SymbolRecord struct {
	NiceName string
	Path     string
	Location Location
}

// NameMap holds the identifier table. A NameMap is immutable after
// Load and safe for concurrent use.
type NameMap struct {
	symbols map[string]SymbolRecord
}

// New creates an empty name map; ReplaceNames on it is the identity.
func New() *NameMap {
	return &NameMap{symbols: make(map[string]SymbolRecord)}
}

// Load reads the paths file and builds the map. The model file is read
// when present but its contents are not used: recorded locations are not
// checked against it and no expressions are extracted from it.
func Load(pathsFile, modelFile string) (*NameMap, error) {
	pathsLines, err := readLines(pathsFile)
	if err != nil {
		return nil, fmt.Errorf("read paths file: %w", err)
	}
	if len(pathsLines) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidPathsFile, pathsFile)
	}

	// The model lines are not used; a missing model is not an error.
	modelLines, _ := readLines(modelFile)

	nm := New()
	for _, line := range pathsLines {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: expected 3 tab-separated fields, got %d", ErrInvalidPathsFile, len(parts))
		}
		loc, err := parseLocation(parts[2])
		if err != nil {
			return nil, err
		}
		nm.symbols[parts[0]] = SymbolRecord{
			NiceName: parts[1],
			Path:     parts[2],
			Location: loc,
		}
	}
	_ = modelLines
	return nm, nil
}

// NiceName returns the recorded nice name for ident, or the empty
// string when the identifier is unknown.
func (nm *NameMap) NiceName(ident string) string {
	return nm.symbols[ident].NiceName
}

// Path returns the recorded path for ident, or the empty string.
func (nm *NameMap) Path(ident string) string {
	return nm.symbols[ident].Path
}

// Has reports whether ident is known.
func (nm *NameMap) Has(ident string) bool {
	_, ok := nm.symbols[ident]
	return ok
}

// Len returns the number of identifiers in the map.
func (nm *NameMap) Len() int { return len(nm.symbols) }

// ReplaceNames substitutes every known identifier in text with its
// nice name, leaving unknown identifiers and all surrounding literal
// text untouched. The operation is pure.
func (nm *NameMap) ReplaceNames(text string) string {
	matches := identRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, m := range matches {
		b.WriteString(text[pos:m[0]])
		ident := text[m[0]:m[1]]
		if rec, ok := nm.symbols[ident]; ok && rec.NiceName != "" {
			b.WriteString(rec.NiceName)
		} else {
			b.WriteString(ident)
		}
		pos = m[1]
	}
	b.WriteString(text[pos:])
	return b.String()
}

// parseLocation extracts the source range from a path entry of the form
// "model;line;col;line;col;...".
func parseLocation(path string) (Location, error) {
	parts := strings.Split(path, ";")
	if len(parts) < 5 {
		// Paths without location information are legal.
		return Location{}, nil
	}
	nums := make([]int, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return Location{}, fmt.Errorf("%w: bad location in %q", ErrInvalidPathsFile, path)
		}
		nums[i] = n
	}
	return Location{
		StartLine: nums[0],
		StartCol:  nums[1],
		EndLine:   nums[2],
		EndCol:    nums[3],
	}, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
