// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/eegprep/edf"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stimRecording(t *testing.T, stim []float64) *recording.Recording {
	t.Helper()

	rec, err := recording.New(100, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		[]recording.Channel{
			{Name: "Cz", Type: recording.EEG, Unit: "uV"},
			{Name: "Status", Type: recording.Stim},
		},
		[][]float64{make([]float64, len(stim)), stim})
	require.NoError(t, err)
	return rec
}

func TestNew(t *testing.T) {
	_, err := recording.New(0, time.Time{}, nil, nil)
	require.Error(t, err)

	_, err = recording.New(100, time.Time{}, []recording.Channel{{Name: "a"}}, nil)
	require.Error(t, err)

	_, err = recording.New(100, time.Time{},
		[]recording.Channel{{Name: "a"}, {Name: "b"}},
		[][]float64{{1, 2}, {1}})
	require.Error(t, err)

	rec := stimRecording(t, make([]float64, 250))
	assert.Equal(t, 250, rec.Samples())
	assert.Equal(t, 2500*time.Millisecond, rec.Duration())
	assert.Equal(t, []int{0}, rec.Picks(recording.EEG))
	assert.Equal(t, []int{1}, rec.Picks(recording.Stim))
	assert.Equal(t, 150, rec.TimeAsIndex(1.5))
}

func TestFindEvents(t *testing.T) {
	// Starts high, which is not an event; drops are offsets.
	stim := []float64{65280, 65280, 65281, 65281, 65280, 65280, 65307, 65308, 65280, 65300}
	rec := stimRecording(t, stim)

	events, err := rec.FindEvents(recording.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []recording.Event{
		{Sample: 2, Previous: 65280, Code: 65281},
		{Sample: 6, Previous: 65280, Code: 65307},
		{Sample: 7, Previous: 65307, Code: 65308},
		{Sample: 9, Previous: 65280, Code: 65300},
	}, events)

	masked, err := rec.FindEvents(recording.FindOptions{StimChannel: "Status", Mask: 0xFF})
	require.NoError(t, err)
	require.Len(t, masked, 4)
	assert.Equal(t, 1, masked[0].Code)
	assert.Equal(t, 27, masked[1].Code)
}

func TestFindEventsNoStim(t *testing.T) {
	rec, err := recording.New(10, time.Time{}, []recording.Channel{{Name: "Cz"}}, [][]float64{{0, 1}})
	require.NoError(t, err)

	_, err = rec.FindEvents(recording.FindOptions{})
	require.ErrorIs(t, err, recording.ErrNoStimChannel)

	_, err = rec.FindEvents(recording.FindOptions{StimChannel: "Trig"})
	require.ErrorIs(t, err, recording.ErrNoStimChannel)
}

func TestAnnotations(t *testing.T) {
	rec := stimRecording(t, []float64{0, 0, 5, 5, 0, 0, 9, 0})

	events, err := rec.FindEvents(recording.FindOptions{})
	require.NoError(t, err)

	annots := recording.FromEvents(events, rec.SFreq, rec.MeasDate, func(code int) string {
		if code == 5 {
			return "training_a"
		}
		return "exp_b"
	})
	rec.SetAnnotations(annots)

	got := rec.Annotations()
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []string{"training_a", "exp_b"}, got.Descriptions())
	assert.InDelta(t, 0.02, got.List[0].Onset, 1e-12)
	assert.InDelta(t, 0.06, got.List[1].Onset, 1e-12)
	assert.True(t, got.OrigTime.Equal(rec.MeasDate))

	// The returned set is a copy.
	got.List[0].Description = "changed"
	assert.Equal(t, "training_a", rec.Annotations().List[0].Description)

	exp := got.WithPrefix("exp")
	require.Equal(t, 1, exp.Len())
	assert.Equal(t, "exp_b", exp.List[0].Description)
}

func TestSaveLoad(t *testing.T) {
	stim := make([]float64, 300)
	for i := range stim {
		stim[i] = 65280
	}
	stim[120], stim[121] = 65283, 65283

	rec := stimRecording(t, stim)
	for i := range rec.Data[0] {
		rec.Data[0][i] = float64(i%50) - 25.5
	}

	path := filepath.Join(t.TempDir(), "sub01.bdf")
	require.NoError(t, recording.Save(path, rec, edf.VersionBioSemi))

	loaded, err := recording.Load(path, recording.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 100.0, loaded.SFreq)
	assert.Equal(t, 300, loaded.Samples())
	assert.True(t, loaded.MeasDate.Equal(rec.MeasDate))
	require.Len(t, loaded.Channels, 2)
	assert.Equal(t, recording.Channel{Name: "Cz", Type: recording.EEG, Unit: "uV"}, loaded.Channels[0])
	assert.Equal(t, recording.Stim, loaded.Channels[1].Type)
	assert.Equal(t, stim, loaded.Data[1])
	for i := range rec.Data[0] {
		assert.InDelta(t, rec.Data[0][i], loaded.Data[0][i], 0.01)
	}

	events, err := loaded.FindEvents(recording.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []recording.Event{{Sample: 120, Previous: 65280, Code: 65283}}, events)

	misc, err := recording.Load(path, recording.LoadOptions{MiscChannels: []string{"Cz"}})
	require.NoError(t, err)
	assert.Empty(t, misc.Picks(recording.EEG))
	assert.Equal(t, []int{0}, misc.Picks(recording.Misc))
}

func TestSaveFractionalRate(t *testing.T) {
	rec, err := recording.New(256.5, time.Now(), []recording.Channel{{Name: "Cz"}}, [][]float64{{1}})
	require.NoError(t, err)

	require.Error(t, recording.Save(filepath.Join(t.TempDir(), "x.edf"), rec, edf.Version0))
}

func TestLoadSkipsAnnotationSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub01.bdf")
	f, err := os.Create(path)
	require.NoError(t, err)

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.VersionBioSemi,
		Reserved:           "BDF+C",
		StartTime:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		DataRecordDuration: time.Second,
		Signals: []edf.Signal{
			{Label: "Cz", PhysicalDimension: "uV", PhysicalMin: -100, PhysicalMax: 100, DigitalMin: -8388608, DigitalMax: 8388607, SamplesPerRecord: 100},
			{Label: "Status", PhysicalMin: -8388608, PhysicalMax: 8388607, DigitalMin: -8388608, DigitalMax: 8388607, SamplesPerRecord: 100},
			{Label: "BDF Annotations", PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -8388608, DigitalMax: 8388607, SamplesPerRecord: 20},
		},
	})
	require.NoError(t, err)

	stim := make([]float64, 100)
	for i := range stim {
		stim[i] = 65280
	}
	stim[40] = 65290
	for i := 0; i < 2; i++ {
		require.NoError(t, ew.WriteRecord([][]float64{make([]float64, 100), stim, make([]float64, 20)}))
	}
	require.NoError(t, ew.Close())
	require.NoError(t, f.Close())

	rec, err := recording.Load(path, recording.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.SFreq)
	assert.Equal(t, 200, rec.Samples())
	require.Len(t, rec.Channels, 2)
	assert.Equal(t, "Cz", rec.Channels[0].Name)
	assert.Equal(t, []int{0}, rec.Picks(recording.EEG))
	assert.Equal(t, []int{1}, rec.Picks(recording.Stim))
}

func TestSaveStimOutOfRange(t *testing.T) {
	stim := make([]float64, 100)
	for i := range stim {
		stim[i] = 65280
	}
	rec := stimRecording(t, stim)

	path := filepath.Join(t.TempDir(), "sub01.edf")
	err := recording.Save(path, rec, edf.Version0)
	require.ErrorContains(t, err, "stim channel \"Status\"")
	assert.NoFileExists(t, path)

	// The same codes fit a BDF file.
	require.NoError(t, recording.Save(filepath.Join(t.TempDir(), "sub01.bdf"), rec, edf.VersionBioSemi))
}
