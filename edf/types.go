// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package edf reads and writes EDF (16-bit) and BioSemi BDF (24-bit) files.
package edf

import "time"

type Version string

const (
	// Version0 identifies an EDF/EDF+ file.
	Version0 Version = "0"
	// VersionBioSemi identifies a BioSemi BDF file (0xFF followed by "BIOSEMI").
	VersionBioSemi Version = "\xffBIOSEMI"
)

// SampleBytes returns the width in bytes of a single stored sample.
func (v Version) SampleBytes() int {
	if v == VersionBioSemi {
		return 3
	}
	return 2
}

// DigitalRange returns the widest digital range a sample of this version can hold.
func (v Version) DigitalRange() (int, int) {
	if v == VersionBioSemi {
		return -8388608, 8388607
	}
	return -32768, 32767
}

// Header represents the EDF/BDF file header.
type Header struct {
	Version            Version       // Version0 or VersionBioSemi
	PatientID          string        // Identification of the patient
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	Reserved           string        // "EDF+C", "24BIT", ...
	DataRecordDuration time.Duration // Duration of a single data record
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal
}

// SampleRate returns the sampling rate of the signal at index i in Hz.
func (h Header) SampleRate(i int) float64 {
	if i < 0 || i >= len(h.Signals) || h.DataRecordDuration <= 0 {
		return 0
	}
	return float64(h.Signals[i].SamplesPerRecord) / h.DataRecordDuration.Seconds()
}

// recordSize is the size in bytes of one data record.
func (h Header) recordSize() int {
	size := 0
	for _, sig := range h.Signals {
		size += sig.SamplesPerRecord * h.Version.SampleBytes()
	}
	return size
}

// Signal represents the characteristics of each signal in the file.
type Signal struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz, Status)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}
