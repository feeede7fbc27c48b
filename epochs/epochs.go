// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package epochs cuts fixed-length segments of EEG data around annotations.
package epochs

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/recording"
)

var (
	// ErrNoTriggers is returned when no annotation starts with the requested prefix.
	ErrNoTriggers = errors.New("no matching triggers found")
	// ErrInvalidWindow is returned when the window holds no samples.
	ErrInvalidWindow = errors.New("invalid epoch window")
	// ErrInvalidBaseline is returned when the baseline interval selects no samples.
	ErrInvalidBaseline = errors.New("invalid baseline interval")
)

// Baseline is the interval, relative to each annotation onset, whose mean is
// subtracted from every channel. A nil bound extends to the edge of the epoch.
type Baseline struct {
	Start *float64
	End   *float64
}

// Options control epoch extraction.
type Options struct {
	TMin     float64   // Window start relative to the onset, seconds
	TMax     float64   // Window end relative to the onset, seconds (exclusive)
	Baseline *Baseline // No baseline correction if nil
	Verbose  bool
	Logger   *slog.Logger
}

// DefaultOptions returns a 0-2 s window without baseline correction.
func DefaultOptions() Options {
	return Options{TMin: 0, TMax: 2, Verbose: true}
}

// Drop records an annotation for which no epoch could be cut.
type Drop struct {
	Label  string
	Onset  float64
	Reason string
}

// Epochs holds equally sized segments of the EEG channels of a recording.
type Epochs struct {
	SFreq    float64
	TMin     float64             // Time of the first sample relative to the onset
	Channels []recording.Channel // EEG channels only
	Labels   []string            // Source annotation description of each epoch
	Onsets   []int               // Onset sample of each epoch's annotation
	Data     [][][]float64       // Epoch, channel, sample
	Dropped  []Drop
}

// Create cuts one epoch per annotation of rec whose description starts with
// prefix. Each epoch spans [onset+TMin, onset+TMax), so it holds exactly
// (TMax-TMin)*SFreq samples. Only EEG channels are kept. Annotations whose
// window extends past either end of the recording are dropped.
func Create(rec *recording.Recording, prefix string, opts Options) (*Epochs, error) {
	ep, err := create(rec, prefix, opts)
	if err != nil {
		logging.Error(opts.Logger, opts.Verbose, "Could not create epochs", "prefix", prefix, "error", err)
		return nil, err
	}

	for _, d := range ep.Dropped {
		logging.Warn(opts.Logger, opts.Verbose, "Dropped epoch", "label", d.Label, "onset", d.Onset, "reason", d.Reason)
	}
	logging.Write(opts.Logger, opts.Verbose,
		fmt.Sprintf("Created %d epochs (%.3f s) for '%s'", ep.Len(), opts.TMax-opts.TMin, prefix))

	return ep, nil
}

func create(rec *recording.Recording, prefix string, opts Options) (*Epochs, error) {
	if opts.TMin >= opts.TMax {
		return nil, fmt.Errorf("%w: tmin (%g) must be less than tmax (%g)", ErrInvalidWindow, opts.TMin, opts.TMax)
	}

	start := rec.TimeAsIndex(opts.TMin)
	// tmax is exclusive: the last sample is one sampling interval before it.
	n := rec.TimeAsIndex(opts.TMax) - start
	if n <= 0 {
		return nil, fmt.Errorf("%w: window shorter than one sample", ErrInvalidWindow)
	}

	selected := rec.Annotations().WithPrefix(prefix)
	if selected.Len() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTriggers, prefix)
	}

	var baseline []int
	if opts.Baseline != nil {
		var err error
		if baseline, err = baselineMask(opts.Baseline, start, n, rec.SFreq); err != nil {
			return nil, err
		}
	}

	picks := rec.Picks(recording.EEG)
	ep := &Epochs{
		SFreq:    rec.SFreq,
		TMin:     float64(start) / rec.SFreq,
		Channels: make([]recording.Channel, len(picks)),
	}
	for i, p := range picks {
		ep.Channels[i] = rec.Channels[p]
	}

	for _, an := range selected.List {
		onset := rec.TimeAsIndex(an.Onset)
		first := onset + start
		if first < 0 || first+n > rec.Samples() {
			ep.Dropped = append(ep.Dropped, Drop{Label: an.Description, Onset: an.Onset, Reason: "window outside recording"})
			continue
		}

		epoch := make([][]float64, len(picks))
		for i, p := range picks {
			epoch[i] = append([]float64(nil), rec.Data[p][first:first+n]...)
			if baseline != nil {
				subtractMean(epoch[i], baseline)
			}
		}

		ep.Labels = append(ep.Labels, an.Description)
		ep.Onsets = append(ep.Onsets, onset)
		ep.Data = append(ep.Data, epoch)
	}

	return ep, nil
}

// baselineMask returns the indices, within an epoch of n samples starting at
// sample offset start, that fall inside the baseline interval.
func baselineMask(b *Baseline, start, n int, sfreq float64) ([]int, error) {
	tfirst := float64(start) / sfreq
	tlast := float64(start+n-1) / sfreq

	bmin, bmax := tfirst, tlast
	if b.Start != nil {
		bmin = *b.Start
	}
	if b.End != nil {
		bmax = *b.End
	}

	// Half a sample of slack absorbs float error in the bounds.
	eps := 0.5 / sfreq
	if bmin > bmax || bmin < tfirst-eps || bmax > tlast+eps {
		return nil, fmt.Errorf("%w: (%g, %g) outside epoch (%g, %g)", ErrInvalidBaseline, bmin, bmax, tfirst, tlast)
	}

	var idx []int
	for k := 0; k < n; k++ {
		t := float64(start+k) / sfreq
		if t >= bmin-1e-9 && t <= bmax+1e-9 {
			idx = append(idx, k)
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: (%g, %g) holds no samples", ErrInvalidBaseline, bmin, bmax)
	}
	return idx, nil
}

func subtractMean(data []float64, idx []int) {
	var sum float64
	for _, k := range idx {
		sum += data[k]
	}
	mean := sum / float64(len(idx))
	for k := range data {
		data[k] -= mean
	}
}

// Len returns the number of epochs.
func (e *Epochs) Len() int {
	return len(e.Data)
}

// Samples returns the number of samples in each epoch.
func (e *Epochs) Samples() int {
	if len(e.Data) == 0 || len(e.Data[0]) == 0 {
		return 0
	}
	return len(e.Data[0][0])
}

// Times returns the time of every epoch sample relative to the onset.
func (e *Epochs) Times() []float64 {
	times := make([]float64, e.Samples())
	first := math.Round(e.TMin * e.SFreq)
	for k := range times {
		times[k] = (first + float64(k)) / e.SFreq
	}
	return times
}

// Select returns the epochs whose label starts with prefix. Data is shared.
func (e *Epochs) Select(prefix string) *Epochs {
	out := &Epochs{SFreq: e.SFreq, TMin: e.TMin, Channels: e.Channels}
	for i, label := range e.Labels {
		if strings.HasPrefix(label, prefix) {
			out.Labels = append(out.Labels, label)
			out.Onsets = append(out.Onsets, e.Onsets[i])
			out.Data = append(out.Data, e.Data[i])
		}
	}
	return out
}
