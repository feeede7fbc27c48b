// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package participant pairs recording files with the behavioral and
// trigger-map files of the same participant.
//
// Recordings are named <id>.<ext>, behavioral files
// beh_<id>_<sex>_<age>[_extra].<ext> and trigger maps
// triggermap_<id>[_extra].<ext>.
package participant

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPSG/eegprep/internal/logging"
)

const (
	BehavioralPrefix = "beh"
	TriggerMapPrefix = "triggermap"
)

// Record is one fully matched participant.
type Record struct {
	ID             string
	Sex            string
	Age            string
	RecordingPath  string
	BehavioralPath string
	TriggerMapPath string
}

// SkipReason explains why a recording was left out.
type SkipReason string

const (
	NoBehavioral        SkipReason = "no beh file"
	MultipleBehavioral  SkipReason = "multiple beh files"
	MalformedBehavioral SkipReason = "malformed beh file name"
	NoTriggerMap        SkipReason = "no trigger map file"
	MultipleTriggerMap  SkipReason = "multiple trigger map files"
)

// Skip records a recording file that could not be matched.
type Skip struct {
	ID     string
	Reason SkipReason
}

// Result is the outcome of matching two directories.
type Result struct {
	Records []Record
	Skips   []Skip
}

// Options control logging of skipped participants.
type Options struct {
	Verbose bool
	Logger  *slog.Logger
}

// Match scans eegDir for recordings and behDir for behavioral and trigger-map
// files, returning one Record per recording with exactly one of each.
// Records are ordered by recording file name.
func Match(eegDir, behDir string, opts Options) (*Result, error) {
	recordings, err := listFiles(eegDir)
	if err != nil {
		return nil, err
	}

	companions, err := listFiles(behDir)
	if err != nil {
		return nil, err
	}

	var behFiles, triggFiles []string
	for _, name := range companions {
		switch {
		case strings.HasPrefix(name, BehavioralPrefix):
			behFiles = append(behFiles, name)
		case strings.HasPrefix(name, TriggerMapPrefix):
			triggFiles = append(triggFiles, name)
		}
	}

	res := &Result{}
	skip := func(id string, reason SkipReason) {
		res.Skips = append(res.Skips, Skip{ID: id, Reason: reason})
		logging.Warn(opts.Logger, opts.Verbose, "Skipping participant", "id", id, "reason", string(reason))
	}

	for _, name := range recordings {
		id := stem(name)

		beh := withID(behFiles, id)
		trigg := withID(triggFiles, id)

		switch {
		case len(beh) == 0:
			skip(id, NoBehavioral)
			continue
		case len(beh) > 1:
			skip(id, MultipleBehavioral)
			continue
		case len(trigg) == 0:
			skip(id, NoTriggerMap)
			continue
		case len(trigg) > 1:
			skip(id, MultipleTriggerMap)
			continue
		}

		tokens := strings.Split(stem(beh[0]), "_")
		if len(tokens) < 4 {
			skip(id, MalformedBehavioral)
			continue
		}

		res.Records = append(res.Records, Record{
			ID:             id,
			Sex:            tokens[2],
			Age:            tokens[3],
			RecordingPath:  filepath.Join(eegDir, name),
			BehavioralPath: filepath.Join(behDir, beh[0]),
			TriggerMapPath: filepath.Join(behDir, trigg[0]),
		})
	}

	return res, nil
}

// listFiles returns the names of the regular, non-hidden files in dir, sorted.
// Symbolic links are followed.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			fi, err := os.Stat(filepath.Join(dir, e.Name()))
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// withID returns the names whose second underscore token equals id.
func withID(names []string, id string) []string {
	var out []string
	for _, name := range names {
		tokens := strings.Split(stem(name), "_")
		if len(tokens) > 1 && tokens[1] == id {
			out = append(out, name)
		}
	}
	return out
}

// stem strips everything from the first dot.
func stem(name string) string {
	s, _, _ := strings.Cut(name, ".")
	return s
}
