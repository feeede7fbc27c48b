// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// maxRecordBytes is the data record size limit recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF and BDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new writer that writes to the given writer. The sample
// width is taken from hdr.Version.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	if hdr.Version == "" {
		hdr.Version = Version0
	}
	if hdr.Version == VersionBioSemi && hdr.Reserved == "" {
		hdr.Reserved = "24BIT"
	}
	hdr.SignalCount = len(hdr.Signals)
	hdr.Signals = append([]Signal(nil), hdr.Signals...)
	hdr.DataRecords = -1 // Unknown number of data records (at this time).

	ew := &Writer{w: w, hdr: &hdr}

	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record, one slice of physical values per signal.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	sampleBytes := ew.hdr.Version.SampleBytes()
	var totalSamples int
	for i, signal := range signals {
		if len(signal) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(signal))
		}
		totalSamples += len(signal)
	}

	if ew.hdr.Version == Version0 && totalSamples*sampleBytes > maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", totalSamples*sampleBytes, maxRecordBytes)
	}

	// Position past the header and any records already written.
	pos := int64(ew.hdr.HeaderBytes) + int64(ew.dataRecords)*int64(totalSamples*sampleBytes)
	if _, err := ew.w.Seek(pos, io.SeekStart); err != nil {
		return err
	}

	lo, hi := ew.hdr.Version.DigitalRange()
	writer := bufio.NewWriter(ew.w)
	buf := make([]byte, sampleBytes)
	for i, signal := range signals {
		sig := ew.hdr.Signals[i]
		for _, sample := range signal {
			digital := convertPhysicalToDigital(sample, sig.PhysicalMin, sig.PhysicalMax, sig.DigitalMin, sig.DigitalMax)
			digital = max(int32(lo), min(int32(hi), digital))
			encodeSample(buf, digital)
			if _, err := writer.Write(buf); err != nil {
				return err
			}
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	ew.hdr.HeaderBytes = 256 + (ew.hdr.SignalCount * 256)

	writer := bufio.NewWriter(ew.w)
	fields := []string{
		fmt.Sprintf("%-8s", ew.hdr.Version),
		fmt.Sprintf("%-80.80s", ew.hdr.PatientID),
		fmt.Sprintf("%-80.80s", ew.hdr.RecordingID),
		fmt.Sprintf("%-8s", ew.hdr.StartTime.Format("02.01.06")),
		fmt.Sprintf("%-8s", ew.hdr.StartTime.Format("15.04.05")),
		fmt.Sprintf("%-8d", ew.hdr.HeaderBytes),
		fmt.Sprintf("%-44.44s", ew.hdr.Reserved),
		fmt.Sprintf("%-8d", ew.hdr.DataRecords),
		fmt.Sprintf("%-8s", formatDuration(ew.hdr.DataRecordDuration)),
		fmt.Sprintf("%-4d", ew.hdr.SignalCount),
	}
	for _, field := range fields {
		if _, err := writer.WriteString(field); err != nil {
			return err
		}
	}

	signalFields := []func(sig Signal) string{
		func(sig Signal) string { return fmt.Sprintf("%-16.16s", sig.Label) },
		func(sig Signal) string { return fmt.Sprintf("%-80.80s", sig.TransducerType) },
		func(sig Signal) string { return fmt.Sprintf("%-8.8s", sig.PhysicalDimension) },
		func(sig Signal) string { return formatPhysicalValue(sig.PhysicalMin) },
		func(sig Signal) string { return formatPhysicalValue(sig.PhysicalMax) },
		func(sig Signal) string { return fmt.Sprintf("%-8d", sig.DigitalMin) },
		func(sig Signal) string { return fmt.Sprintf("%-8d", sig.DigitalMax) },
		func(sig Signal) string { return fmt.Sprintf("%-80.80s", sig.Prefiltering) },
		func(sig Signal) string { return fmt.Sprintf("%-8d", sig.SamplesPerRecord) },
		func(sig Signal) string { return fmt.Sprintf("%-32.32s", sig.Reserved) },
	}
	for _, field := range signalFields {
		for _, sig := range ew.hdr.Signals {
			if _, err := writer.WriteString(field(sig)); err != nil {
				return err
			}
		}
	}

	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using the calibration factors.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int32 {
	if pmax == pmin {
		return 0 // Avoid division by zero
	}
	digital := math.Round(((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin))
	return int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, digital)))
}

// encodeSample stores v little-endian in len(buf) bytes.
func encodeSample(buf []byte, v int32) {
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
}

func formatDuration(d time.Duration) string {
	s := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places
	s := fmt.Sprintf("%.2f", val)
	if len(s) > 8 {
		// Fall back to no decimal
		s = fmt.Sprintf("%.0f", val)
	}
	return fmt.Sprintf("%-8s", s)
}
