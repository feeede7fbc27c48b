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
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reader reads EDF and BDF files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// signalField describes one of the per-signal header fields, which are stored
// field by field for all signals in turn.
type signalField struct {
	width int
	set   func(sig *Signal, v string)
}

var signalFields = []signalField{
	{16, func(sig *Signal, v string) { sig.Label = v }},
	{80, func(sig *Signal, v string) { sig.TransducerType = v }},
	{8, func(sig *Signal, v string) { sig.PhysicalDimension = v }},
	{8, func(sig *Signal, v string) { sig.PhysicalMin = parseFloat(v) }},
	{8, func(sig *Signal, v string) { sig.PhysicalMax = parseFloat(v) }},
	{8, func(sig *Signal, v string) { sig.DigitalMin = parseInt(v) }},
	{8, func(sig *Signal, v string) { sig.DigitalMax = parseInt(v) }},
	{80, func(sig *Signal, v string) { sig.Prefiltering = v }},
	{8, func(sig *Signal, v string) { sig.SamplesPerRecord = parseInt(v) }},
	{32, func(sig *Signal, v string) { sig.Reserved = v }},
}

// Open parses the header of an EDF or BDF file.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := &Header{}
	if b[0] == 0xFF {
		hdr.Version = Version(b[0:8])
	} else {
		hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	}
	if hdr.Version != Version0 && hdr.Version != VersionBioSemi {
		return nil, fmt.Errorf("unsupported version %q", hdr.Version)
	}
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	startDate, err := time.Parse("02.01.06", strings.TrimSpace(string(b[168:176])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192]))); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	hdr.Reserved = strings.TrimSpace(string(b[192:236]))

	if hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244]))); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}

	hdr.DataRecordDuration, err = time.ParseDuration(strings.TrimSpace(string(b[244:252])) + "s")
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}

	if hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256]))); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount < 0 {
		return nil, fmt.Errorf("invalid signal count %d", hdr.SignalCount)
	}

	hdr.Signals = make([]Signal, hdr.SignalCount)
	for _, field := range signalFields {
		b := make([]byte, field.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(reader, b); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			field.set(&hdr.Signals[i], strings.TrimSpace(string(b)))
		}
	}

	// Writers that crashed before finalizing leave the record count at -1.
	if hdr.DataRecords < 0 {
		if hdr.DataRecords, err = countRecords(r, hdr); err != nil {
			return nil, err
		}
	}

	return &Reader{
		r:   r,
		hdr: hdr,
	}, nil
}

// Header returns a copy of the parsed file header.
func (er *Reader) Header() Header {
	hdr := *er.hdr
	hdr.Signals = append([]Signal(nil), er.hdr.Signals...)
	return hdr
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index out of range")
	}

	sampleBytes := er.hdr.Version.SampleBytes()
	signalOffset := 0
	for _, sig := range er.hdr.Signals[:signalIndex] {
		signalOffset += sig.SamplesPerRecord * sampleBytes
	}

	return &SignalReader{
		r:            er.r,
		hdr:          er.hdr,
		signal:       er.hdr.Signals[signalIndex],
		sampleBytes:  sampleBytes,
		recordSize:   er.hdr.recordSize(),
		signalOffset: signalOffset,
	}, nil
}

// ReadSignal reads every physical sample of a signal.
func (er *Reader) ReadSignal(signalIndex int) ([]float64, error) {
	sr, err := er.Signal(signalIndex)
	if err != nil {
		return nil, err
	}

	data := make([]float64, er.hdr.DataRecords*er.hdr.Signals[signalIndex].SamplesPerRecord)
	n, err := sr.Read(data)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

// SignalReader reads continuous signal data from an EDF or BDF file.
type SignalReader struct {
	r             io.ReadSeeker
	hdr           *Header
	signal        Signal
	sampleBytes   int
	recordSize    int    // Total size of one data record
	signalOffset  int    // Byte offset of the signal in a record
	currentRecord int    // Current record being processed
	currentSample int    // Current sample in the record
	chunk         []byte // This signal's bytes of the current record
}

// Read fills the provided float64 slice with the physical values from the signal.
func (sr *SignalReader) Read(data []float64) (int, error) {
	n := 0
	for n < len(data) {
		if sr.currentRecord >= sr.hdr.DataRecords {
			return n, io.EOF
		}

		if sr.chunk == nil {
			if err := sr.loadRecord(); err != nil {
				return n, err
			}
		}

		off := sr.currentSample * sr.sampleBytes
		digital := decodeSample(sr.chunk[off : off+sr.sampleBytes])
		data[n] = convertDigitalToPhysical(digital, sr.signal.DigitalMin, sr.signal.DigitalMax, sr.signal.PhysicalMin, sr.signal.PhysicalMax)
		n++

		sr.currentSample++
		if sr.currentSample >= sr.signal.SamplesPerRecord {
			sr.currentSample = 0
			sr.currentRecord++
			sr.chunk = nil
		}
	}

	return n, nil
}

// loadRecord reads this signal's samples of the current data record.
func (sr *SignalReader) loadRecord() error {
	pos := int64(sr.hdr.HeaderBytes) + int64(sr.currentRecord)*int64(sr.recordSize) + int64(sr.signalOffset)
	if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to position: %w", err)
	}

	chunk := make([]byte, sr.signal.SamplesPerRecord*sr.sampleBytes)
	if _, err := io.ReadFull(sr.r, chunk); err != nil {
		return fmt.Errorf("error reading sample data: %w", err)
	}
	sr.chunk = chunk
	return nil
}

func countRecords(r io.Seeker, hdr *Header) (int, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("error seeking to end: %w", err)
	}
	size := hdr.recordSize()
	if size == 0 {
		return 0, nil
	}
	return int((end - int64(hdr.HeaderBytes)) / int64(size)), nil
}

// decodeSample decodes a little-endian two's complement sample of 2 or 3 bytes.
func decodeSample(b []byte) int32 {
	if len(b) == 3 {
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return v << 8 >> 8
	}
	return int32(int16(binary.LittleEndian.Uint16(b)))
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int32, dmin, dmax int, pmin, pmax float64) float64 {
	if dmax == dmin {
		return 0 // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
