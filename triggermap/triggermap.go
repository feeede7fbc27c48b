// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package triggermap loads the table describing the expected trigger
// sequence of a recording session.
package triggermap

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Column names expected in the header row.
const (
	ColTriggerNo   = "trigger_no"
	ColTriggerType = "trigger_type"
	ColAccuracy    = "acc"
	ColN           = "n"
	ColBlockType   = "block_type"
)

var columns = []string{ColTriggerNo, ColTriggerType, ColAccuracy, ColN, ColBlockType}

// Row is one expected trial, in chronological order.
type Row struct {
	TriggerNo   int
	TriggerType string
	Accuracy    int
	N           int
	BlockType   string
}

// Load reads a trigger-map file.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Read parses a delimited trigger-map table. The delimiter (comma,
// semicolon or tab) is detected from the header row; columns may appear in
// any order and unknown columns are ignored.
func Read(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	firstLine, _, _ := strings.Cut(string(first), "\n")

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(firstLine)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty trigger map")
	} else if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	for _, col := range columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)

		cell := func(col string) string {
			if j := index[col]; j < len(record) {
				return strings.TrimSpace(record[j])
			}
			return ""
		}

		var row Row
		if row.TriggerNo, err = parseInt(cell(ColTriggerNo)); err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, ColTriggerNo, err)
		}
		if row.Accuracy, err = parseInt(cell(ColAccuracy)); err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, ColAccuracy, err)
		}
		if row.N, err = parseInt(cell(ColN)); err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, ColN, err)
		}
		row.TriggerType = cell(ColTriggerType)
		row.BlockType = cell(ColBlockType)

		rows = append(rows, row)
	}

	return rows, nil
}

// TriggerNumbers returns the trigger_no column.
func TriggerNumbers(rows []Row) []int {
	nos := make([]int, len(rows))
	for i, row := range rows {
		nos[i] = row.TriggerNo
	}
	return nos
}

func detectDelimiter(header string) rune {
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(header, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// parseInt accepts integers and floats without a fractional part ("3.0").
func parseInt(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
