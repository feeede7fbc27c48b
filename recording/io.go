// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"github.com/OpenPSG/eegprep/edf"
)

// DefaultStimChannel is the trigger channel label written by BioSemi amplifiers.
const DefaultStimChannel = "Status"

// annotationSignals are the EDF+ and BDF+ pseudo-signals carrying TAL
// annotations, which hold no samples.
var annotationSignals = []string{"EDF Annotations", "BDF Annotations"}

// LoadOptions control how file signals are mapped to channels.
type LoadOptions struct {
	StimChannel  string   // Label of the trigger channel, DefaultStimChannel if empty
	MiscChannels []string // Labels typed Misc instead of EEG
}

// Load reads an EDF or BDF file into memory.
func Load(path string, opts LoadOptions) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// Read reads an EDF or BDF stream into memory. Every signal must share one
// sampling rate.
func Read(r io.ReadSeeker, opts LoadOptions) (*Recording, error) {
	if opts.StimChannel == "" {
		opts.StimChannel = DefaultStimChannel
	}

	er, err := edf.Open(r)
	if err != nil {
		return nil, err
	}
	hdr := er.Header()

	var (
		sfreq    float64
		channels []Channel
		data     [][]float64
	)
	for i, sig := range hdr.Signals {
		if slices.Contains(annotationSignals, sig.Label) {
			continue
		}

		rate := hdr.SampleRate(i)
		if sfreq == 0 {
			sfreq = rate
		} else if rate != sfreq {
			return nil, fmt.Errorf("signal %q sampled at %g Hz, expected %g Hz", sig.Label, rate, sfreq)
		}

		samples, err := er.ReadSignal(i)
		if err != nil {
			return nil, fmt.Errorf("error reading signal %q: %w", sig.Label, err)
		}

		ch := Channel{Name: sig.Label, Type: EEG, Unit: sig.PhysicalDimension}
		switch {
		case sig.Label == opts.StimChannel:
			ch.Type = Stim
		case slices.Contains(opts.MiscChannels, sig.Label):
			ch.Type = Misc
		}

		channels = append(channels, ch)
		data = append(data, samples)
	}

	return New(sfreq, hdr.StartTime, channels, data)
}

// Save writes the recording to path in the given file version. Sampling
// rates that are not whole numbers of Hz are not supported. The final data
// record is padded with zeros.
func Save(path string, rec *Recording, version edf.Version) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Write(f, rec, version); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Write encodes the recording to w, one data record per second.
func Write(w io.WriteSeeker, rec *Recording, version edf.Version) error {
	perRecord := int(rec.SFreq)
	if float64(perRecord) != rec.SFreq {
		return fmt.Errorf("sampling rate %g Hz is not a whole number", rec.SFreq)
	}

	dmin, dmax := version.DigitalRange()
	signals := make([]edf.Signal, len(rec.Channels))
	for i, ch := range rec.Channels {
		pmin, pmax := float64(dmin), float64(dmax)
		if ch.Type != Stim {
			pmin, pmax = physicalRange(rec.Data[i])
		} else if slices.ContainsFunc(rec.Data[i], func(v float64) bool { return v < pmin || v > pmax }) {
			// Stim codes are stored verbatim and would be clamped.
			return fmt.Errorf("stim channel %q holds values outside %g..%g, use a BDF file", ch.Name, pmin, pmax)
		}
		signals[i] = edf.Signal{
			Label:             ch.Name,
			PhysicalDimension: ch.Unit,
			PhysicalMin:       pmin,
			PhysicalMax:       pmax,
			DigitalMin:        dmin,
			DigitalMax:        dmax,
			SamplesPerRecord:  perRecord,
		}
	}

	ew, err := edf.Create(w, edf.Header{
		Version:            version,
		StartTime:          rec.MeasDate,
		DataRecordDuration: time.Second,
		Signals:            signals,
	})
	if err != nil {
		return err
	}

	record := make([][]float64, len(rec.Channels))
	for start := 0; start < rec.Samples(); start += perRecord {
		for i := range record {
			record[i] = make([]float64, perRecord)
			copy(record[i], rec.Data[i][start:min(start+perRecord, rec.Samples())])
		}
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("error writing data record: %w", err)
		}
	}

	return ew.Close()
}

// physicalRange returns whole-number bounds enclosing every sample.
func physicalRange(data []float64) (float64, float64) {
	lo, hi := 0.0, 0.0
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return math.Floor(lo) - 1, math.Ceil(hi) + 1
}
