// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package epochs

import (
	"time"

	"github.com/OpenPSG/eegprep/recording"
)

// Evoked is the average of all epochs sharing a label.
type Evoked struct {
	Label    string
	NAve     int // Number of epochs averaged
	SFreq    float64
	TMin     float64
	Channels []recording.Channel
	Data     [][]float64 // Channel, sample
}

// Average returns one Evoked per distinct label, in order of first appearance.
func (e *Epochs) Average() []Evoked {
	var (
		evoked []Evoked
		index  = make(map[string]int)
	)

	for i, label := range e.Labels {
		j, ok := index[label]
		if !ok {
			j = len(evoked)
			index[label] = j
			data := make([][]float64, len(e.Channels))
			for c := range data {
				data[c] = make([]float64, e.Samples())
			}
			evoked = append(evoked, Evoked{
				Label:    label,
				SFreq:    e.SFreq,
				TMin:     e.TMin,
				Channels: e.Channels,
				Data:     data,
			})
		}

		ev := &evoked[j]
		ev.NAve++
		for c, samples := range e.Data[i] {
			for k, v := range samples {
				ev.Data[c][k] += v
			}
		}
	}

	for j := range evoked {
		for _, samples := range evoked[j].Data {
			for k := range samples {
				samples[k] /= float64(evoked[j].NAve)
			}
		}
	}

	return evoked
}

// Recording wraps the averaged data as a continuous recording starting at
// measDate, for export.
func (ev *Evoked) Recording(measDate time.Time) (*recording.Recording, error) {
	return recording.New(ev.SFreq, measDate, ev.Channels, ev.Data)
}
