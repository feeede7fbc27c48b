// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package triggers turns hardware trigger codes into labelled annotations
// using a trigger map, and removes annotations of the training phase.
package triggers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/OpenPSG/eegprep/triggermap"
)

// BioSemiOffset is added by BioSemi amplifiers to every trigger code: the
// upper byte of the 16-bit status word is held high. Other devices may
// report codes unbiased, in which case Options.Offset should be zero.
const BioSemiOffset = 65280

// TrainingPrefix starts the description of every training-phase annotation.
const TrainingPrefix = "training"

// ErrNoEvents is returned when the stim channel holds no trigger events.
var ErrNoEvents = errors.New("no events found")

// CountMismatchError reports a different number of detected events and trigger-map rows.
type CountMismatchError struct {
	Events int
	Rows   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("event count (%d) does not match trigger map rows (%d)", e.Events, e.Rows)
}

// CodeMismatchError reports the first event whose code differs from the
// trigger map's trigger_no at the same position.
type CodeMismatchError struct {
	Index int
	Event int
	Row   int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("trigger numbers do not match trigger map: event %d has code %d, trigger_no is %d", e.Index, e.Event, e.Row)
}

// Options control annotation building.
type Options struct {
	// Offset is subtracted from every detected code to recover the
	// trigger number.
	Offset  int
	Find    recording.FindOptions
	Verbose bool
	Logger  *slog.Logger
}

// DefaultOptions returns options for BioSemi recordings.
func DefaultOptions() Options {
	return Options{Offset: BioSemiOffset, Verbose: true}
}

// SetAnnotationsFromTriggerMap replaces the annotations of rec with one
// annotation per detected trigger event, described as
// "<block_type>_<trigger_type>_<n>_<acc>" from the trigger-map row at the
// same position.
//
// Events must match rows one to one, in order, by trigger number. On a
// mismatch the recording is left holding the provisional annotations,
// described by trigger number, and an error is returned.
func SetAnnotationsFromTriggerMap(rec *recording.Recording, rows []triggermap.Row, opts Options) (*recording.Recording, error) {
	rec, err := setAnnotations(rec, rows, opts)
	if err != nil {
		logging.Error(opts.Logger, opts.Verbose, "Could not set annotations from trigger map", "error", err)
		return nil, err
	}
	return rec, nil
}

func setAnnotations(rec *recording.Recording, rows []triggermap.Row, opts Options) (*recording.Recording, error) {
	events, err := rec.FindEvents(opts.Find)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	annots := recording.FromEvents(events, rec.SFreq, rec.MeasDate, func(code int) string {
		return strconv.Itoa(code - opts.Offset)
	})
	rec.SetAnnotations(annots)

	if len(events) != len(rows) {
		return nil, &CountMismatchError{Events: len(events), Rows: len(rows)}
	}

	expected := triggermap.TriggerNumbers(rows)
	for i, ev := range events {
		if code := ev.Code - opts.Offset; code != expected[i] {
			return nil, &CodeMismatchError{Index: i, Event: code, Row: expected[i]}
		}
	}

	for i := range annots.List {
		annots.List[i].Description = Describe(rows[i])
	}
	rec.SetAnnotations(annots)

	return rec, nil
}

// Describe formats a trigger-map row as an annotation description.
func Describe(row triggermap.Row) string {
	return fmt.Sprintf("%s_%s_%d_%d",
		strings.TrimSpace(row.BlockType),
		strings.TrimSpace(row.TriggerType),
		row.N,
		row.Accuracy)
}

// DropTrainingAnnotations removes every annotation whose description starts
// with TrainingPrefix. The order, onsets, durations and time origin of the
// remaining annotations are preserved.
func DropTrainingAnnotations(rec *recording.Recording) *recording.Recording {
	return DropAnnotations(rec, TrainingPrefix)
}

// DropAnnotations removes every annotation whose description starts with prefix.
func DropAnnotations(rec *recording.Recording, prefix string) *recording.Recording {
	kept := rec.Annotations().Filter(func(an recording.Annotation) bool {
		return !strings.HasPrefix(an.Description, prefix)
	})
	rec.SetAnnotations(kept)
	return rec
}
