// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(&buf, "info", "text")
	require.NoError(t, err)

	logging.Write(l, false, "hidden")
	assert.Empty(t, buf.String())

	logging.Write(l, true, "shown", "n", 3)
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "n=3")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(&buf, "warn", "json")
	require.NoError(t, err)

	logging.Write(l, true, "below level")
	assert.Empty(t, buf.String())

	logging.Error(l, true, "boom", "id", "sub01")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["msg"])
	assert.Equal(t, "sub01", rec["id"])
}

func TestNewInvalid(t *testing.T) {
	_, err := logging.New(&bytes.Buffer{}, "loud", "text")
	require.Error(t, err)

	_, err = logging.New(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}
