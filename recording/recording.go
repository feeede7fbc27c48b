// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package recording holds a continuous multi-channel recording in memory
// together with its annotation set.
package recording

import (
	"fmt"
	"math"
	"time"
)

// ChannelType is the modality of a channel.
type ChannelType int

const (
	EEG ChannelType = iota
	Stim
	Misc
)

func (t ChannelType) String() string {
	switch t {
	case EEG:
		return "eeg"
	case Stim:
		return "stim"
	default:
		return "misc"
	}
}

// Channel describes a single channel of a recording.
type Channel struct {
	Name string
	Type ChannelType
	Unit string // Physical dimension (e.g. uV)
}

// Recording is a continuous recording sampled at a single rate.
type Recording struct {
	SFreq    float64     // Sampling rate in Hz
	MeasDate time.Time   // Start of the recording
	Channels []Channel   // Channel descriptions, parallel to Data
	Data     [][]float64 // Channel-major samples

	annotations Annotations
}

// New creates a recording, checking that every channel has the same number of samples.
func New(sfreq float64, measDate time.Time, channels []Channel, data [][]float64) (*Recording, error) {
	if sfreq <= 0 {
		return nil, fmt.Errorf("invalid sampling rate %g", sfreq)
	}
	if len(channels) != len(data) {
		return nil, fmt.Errorf("expected %d channels of data, got %d", len(channels), len(data))
	}
	for i := range data {
		if len(data[i]) != len(data[0]) {
			return nil, fmt.Errorf("channel %q has %d samples, expected %d", channels[i].Name, len(data[i]), len(data[0]))
		}
	}

	return &Recording{
		SFreq:       sfreq,
		MeasDate:    measDate,
		Channels:    channels,
		Data:        data,
		annotations: Annotations{OrigTime: measDate},
	}, nil
}

// Samples returns the number of samples per channel.
func (r *Recording) Samples() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// Duration returns the length of the recording.
func (r *Recording) Duration() time.Duration {
	return time.Duration(float64(r.Samples()) / r.SFreq * float64(time.Second))
}

// Picks returns the indices of all channels of the given type.
func (r *Recording) Picks(t ChannelType) []int {
	var picks []int
	for i, ch := range r.Channels {
		if ch.Type == t {
			picks = append(picks, i)
		}
	}
	return picks
}

// Channel returns the index of the channel with the given name.
func (r *Recording) Channel(name string) (int, bool) {
	for i, ch := range r.Channels {
		if ch.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Annotations returns a copy of the recording's annotation set.
func (r *Recording) Annotations() Annotations {
	return r.annotations.Clone()
}

// SetAnnotations replaces the recording's annotation set.
func (r *Recording) SetAnnotations(a Annotations) {
	r.annotations = a.Clone()
}

// TimeAsIndex converts a time in seconds relative to the start of the
// recording to the nearest sample index.
func (r *Recording) TimeAsIndex(t float64) int {
	return int(math.Round(t * r.SFreq))
}
