// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package participant_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/participant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
}

func TestMatch(t *testing.T) {
	eegDir, behDir := t.TempDir(), t.TempDir()

	touch(t, eegDir, "sub01.bdf", "sub02.bdf", "sub03.bdf", "sub04.bdf", "sub05.bdf", "sub06.bdf", ".DS_Store")
	require.NoError(t, os.Mkdir(filepath.Join(eegDir, "sub07"), 0o755))
	touch(t, behDir,
		// sub01: complete
		"beh_sub01_F_23.csv", "triggermap_sub01.csv",
		// sub02: complete, with extra tokens
		"beh_sub02_M_31_session2.csv", "triggermap_sub02_v2.csv",
		// sub03: two behavioral files
		"beh_sub03_F_20.csv", "beh_sub03_F_20_retest.csv", "triggermap_sub03.csv",
		// sub04: no trigger map
		"beh_sub04_M_40.csv",
		// sub05: two trigger maps
		"beh_sub05_M_22.csv", "triggermap_sub05.csv", "triggermap_sub05_old.csv",
		// sub06: no behavioral file
		"triggermap_sub06.csv",
		"notes.txt",
	)

	var logs bytes.Buffer
	l, err := logging.New(&logs, "info", "text")
	require.NoError(t, err)

	res, err := participant.Match(eegDir, behDir, participant.Options{Verbose: true, Logger: l})
	require.NoError(t, err)

	assert.Equal(t, []participant.Record{
		{
			ID:             "sub01",
			Sex:            "F",
			Age:            "23",
			RecordingPath:  filepath.Join(eegDir, "sub01.bdf"),
			BehavioralPath: filepath.Join(behDir, "beh_sub01_F_23.csv"),
			TriggerMapPath: filepath.Join(behDir, "triggermap_sub01.csv"),
		},
		{
			ID:             "sub02",
			Sex:            "M",
			Age:            "31",
			RecordingPath:  filepath.Join(eegDir, "sub02.bdf"),
			BehavioralPath: filepath.Join(behDir, "beh_sub02_M_31_session2.csv"),
			TriggerMapPath: filepath.Join(behDir, "triggermap_sub02_v2.csv"),
		},
	}, res.Records)

	assert.Equal(t, []participant.Skip{
		{ID: "sub03", Reason: participant.MultipleBehavioral},
		{ID: "sub04", Reason: participant.NoTriggerMap},
		{ID: "sub05", Reason: participant.MultipleTriggerMap},
		{ID: "sub06", Reason: participant.NoBehavioral},
	}, res.Skips)

	assert.Contains(t, logs.String(), "id=sub03")
	assert.Contains(t, logs.String(), `reason="multiple beh files"`)
}

func TestMatchMalformedBehavioral(t *testing.T) {
	eegDir, behDir := t.TempDir(), t.TempDir()
	touch(t, eegDir, "p1.edf")
	touch(t, behDir, "beh_p1_F.csv", "triggermap_p1.csv")

	res, err := participant.Match(eegDir, behDir, participant.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, []participant.Skip{{ID: "p1", Reason: participant.MalformedBehavioral}}, res.Skips)
}

func TestMatchQuiet(t *testing.T) {
	eegDir, behDir := t.TempDir(), t.TempDir()
	touch(t, eegDir, "p1.edf")

	var logs bytes.Buffer
	l, err := logging.New(&logs, "info", "text")
	require.NoError(t, err)

	res, err := participant.Match(eegDir, behDir, participant.Options{Logger: l})
	require.NoError(t, err)
	assert.Len(t, res.Skips, 1)
	assert.Empty(t, logs.String())
}

func TestMatchMissingDirectory(t *testing.T) {
	_, err := participant.Match(filepath.Join(t.TempDir(), "missing"), t.TempDir(), participant.Options{})
	require.Error(t, err)
}

func TestMatchFollowsSymlinks(t *testing.T) {
	eegDir, behDir, storage := t.TempDir(), t.TempDir(), t.TempDir()

	touch(t, storage, "sub01.bdf")
	require.NoError(t, os.Symlink(filepath.Join(storage, "sub01.bdf"), filepath.Join(eegDir, "sub01.bdf")))
	// Links to directories and dangling links are not recordings.
	require.NoError(t, os.Symlink(storage, filepath.Join(eegDir, "sub02")))
	require.NoError(t, os.Symlink(filepath.Join(storage, "missing.bdf"), filepath.Join(eegDir, "sub03.bdf")))
	touch(t, behDir, "beh_sub01_F_23.csv", "triggermap_sub01.csv")

	res, err := participant.Match(eegDir, behDir, participant.Options{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "sub01", res.Records[0].ID)
	assert.Equal(t, filepath.Join(eegDir, "sub01.bdf"), res.Records[0].RecordingPath)
	assert.Empty(t, res.Skips)
}
