// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package triggers_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/OpenPSG/eegprep/triggermap"
	"github.com/OpenPSG/eegprep/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var measDate = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

// pulses builds a 100 Hz recording whose status channel idles at the
// BioSemi offset and carries a two-sample pulse at each onset.
func pulses(t *testing.T, samples int, onsets []int, codes []int) *recording.Recording {
	t.Helper()

	stim := make([]float64, samples)
	for i := range stim {
		stim[i] = triggers.BioSemiOffset
	}
	for i, onset := range onsets {
		stim[onset] = float64(triggers.BioSemiOffset + codes[i])
		stim[onset+1] = float64(triggers.BioSemiOffset + codes[i])
	}

	rec, err := recording.New(100, measDate,
		[]recording.Channel{{Name: "Fz"}, {Name: "Status", Type: recording.Stim}},
		[][]float64{make([]float64, samples), stim})
	require.NoError(t, err)
	return rec
}

var rows = []triggermap.Row{
	{TriggerNo: 11, TriggerType: " matrix", Accuracy: 1, N: 1, BlockType: "training "},
	{TriggerNo: 12, TriggerType: "matrix", Accuracy: 0, N: 2, BlockType: "training"},
	{TriggerNo: 21, TriggerType: "letter", Accuracy: 1, N: 1, BlockType: "experiment"},
	{TriggerNo: 21, TriggerType: "letter", Accuracy: 0, N: 2, BlockType: "experiment"},
}

func TestSetAnnotationsFromTriggerMap(t *testing.T) {
	rec := pulses(t, 1000, []int{100, 250, 400, 700}, []int{11, 12, 21, 21})

	got, err := triggers.SetAnnotationsFromTriggerMap(rec, rows, triggers.DefaultOptions())
	require.NoError(t, err)
	require.Same(t, rec, got)

	annots := got.Annotations()
	assert.Equal(t, []string{
		"training_matrix_1_1",
		"training_matrix_2_0",
		"experiment_letter_1_1",
		"experiment_letter_2_0",
	}, annots.Descriptions())
	assert.True(t, annots.OrigTime.Equal(measDate))

	for i, onset := range []float64{1.0, 2.5, 4.0, 7.0} {
		assert.InDelta(t, onset, annots.List[i].Onset, 1e-9)
		assert.Zero(t, annots.List[i].Duration)
	}
}

func TestSetAnnotationsNoEvents(t *testing.T) {
	rec := pulses(t, 100, nil, nil)

	var logs bytes.Buffer
	l, err := logging.New(&logs, "info", "text")
	require.NoError(t, err)

	opts := triggers.DefaultOptions()
	opts.Logger = l

	got, err := triggers.SetAnnotationsFromTriggerMap(rec, rows, opts)
	require.ErrorIs(t, err, triggers.ErrNoEvents)
	assert.Nil(t, got)
	assert.Contains(t, logs.String(), "no events found")
}

func TestSetAnnotationsCountMismatch(t *testing.T) {
	rec := pulses(t, 1000, []int{100, 250, 400}, []int{11, 12, 21})

	got, err := triggers.SetAnnotationsFromTriggerMap(rec, rows, triggers.Options{Offset: triggers.BioSemiOffset})
	assert.Nil(t, got)

	var mismatch *triggers.CountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Events)
	assert.Equal(t, 4, mismatch.Rows)

	// Only the provisional, code-labelled annotations are present.
	assert.Equal(t, []string{"11", "12", "21"}, rec.Annotations().Descriptions())
}

func TestSetAnnotationsCodeMismatch(t *testing.T) {
	rec := pulses(t, 1000, []int{100, 250, 400, 700}, []int{11, 13, 21, 21})

	got, err := triggers.SetAnnotationsFromTriggerMap(rec, rows, triggers.Options{Offset: triggers.BioSemiOffset})
	assert.Nil(t, got)

	var mismatch *triggers.CodeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, triggers.CodeMismatchError{Index: 1, Event: 13, Row: 12}, *mismatch)
	assert.Equal(t, []string{"11", "13", "21", "21"}, rec.Annotations().Descriptions())
}

func TestSetAnnotationsOffset(t *testing.T) {
	// A device without the BioSemi bias.
	stim := []float64{0, 0, 5, 5, 0, 0, 0, 7, 7, 0}
	rec, err := recording.New(10, measDate,
		[]recording.Channel{{Name: "TRIG", Type: recording.Stim}},
		[][]float64{stim})
	require.NoError(t, err)

	_, err = triggers.SetAnnotationsFromTriggerMap(rec, []triggermap.Row{
		{TriggerNo: 5, TriggerType: "a", BlockType: "exp", N: 1, Accuracy: 1},
		{TriggerNo: 7, TriggerType: "b", BlockType: "exp", N: 1, Accuracy: 0},
	}, triggers.Options{Find: recording.FindOptions{StimChannel: "TRIG"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"exp_a_1_1", "exp_b_1_0"}, rec.Annotations().Descriptions())
}

func TestDropTrainingAnnotations(t *testing.T) {
	rec := pulses(t, 100, nil, nil)
	rec.SetAnnotations(recording.Annotations{
		OrigTime: measDate,
		List: []recording.Annotation{
			{Onset: 0.5, Duration: 0, Description: "training_1_1_1"},
			{Onset: 1.25, Duration: 0.5, Description: "exp_1_1_1"},
			{Onset: 2.0, Duration: 0, Description: "training_2_2_0"},
		},
	})

	triggers.DropTrainingAnnotations(rec)
	once := rec.Annotations()
	assert.Equal(t, []recording.Annotation{
		{Onset: 1.25, Duration: 0.5, Description: "exp_1_1_1"},
	}, once.List)
	assert.True(t, once.OrigTime.Equal(measDate))

	triggers.DropTrainingAnnotations(rec)
	assert.Equal(t, once, rec.Annotations())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "exp_face_10_0", triggers.Describe(triggermap.Row{
		BlockType: "  exp", TriggerType: "face\t", N: 10, Accuracy: 0,
	}))
}
