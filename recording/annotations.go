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
	"strings"
	"time"
)

// Annotation is a labelled interval of a recording.
type Annotation struct {
	Onset       float64 // Seconds from the start of the recording
	Duration    float64 // Seconds
	Description string
}

// Annotations is an ordered annotation set sharing one time origin.
type Annotations struct {
	OrigTime time.Time
	List     []Annotation
}

// FromEvents creates one zero-duration annotation per event, labelled by describe.
func FromEvents(events []Event, sfreq float64, origTime time.Time, describe func(code int) string) Annotations {
	a := Annotations{OrigTime: origTime, List: make([]Annotation, len(events))}
	for i, ev := range events {
		a.List[i] = Annotation{
			Onset:       float64(ev.Sample) / sfreq,
			Description: describe(ev.Code),
		}
	}
	return a
}

// Len returns the number of annotations.
func (a Annotations) Len() int {
	return len(a.List)
}

// Descriptions returns the description of every annotation in order.
func (a Annotations) Descriptions() []string {
	desc := make([]string, len(a.List))
	for i, an := range a.List {
		desc[i] = an.Description
	}
	return desc
}

// Clone returns a deep copy.
func (a Annotations) Clone() Annotations {
	return Annotations{
		OrigTime: a.OrigTime,
		List:     append([]Annotation(nil), a.List...),
	}
}

// Filter returns the annotations for which keep reports true, in order.
func (a Annotations) Filter(keep func(Annotation) bool) Annotations {
	out := Annotations{OrigTime: a.OrigTime}
	for _, an := range a.List {
		if keep(an) {
			out.List = append(out.List, an)
		}
	}
	return out
}

// WithPrefix returns the annotations whose description starts with prefix.
func (a Annotations) WithPrefix(prefix string) Annotations {
	return a.Filter(func(an Annotation) bool {
		return strings.HasPrefix(an.Description, prefix)
	})
}
