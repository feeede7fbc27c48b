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
	"errors"
	"fmt"
	"math"
)

// ErrNoStimChannel is returned when a recording has no trigger channel to search.
var ErrNoStimChannel = errors.New("no stim channel")

// Event is a step in the stim channel.
type Event struct {
	Sample   int // Sample index of the step
	Previous int // Stim value before the step
	Code     int // Stim value after the step
}

// FindOptions control stim event detection.
type FindOptions struct {
	// StimChannel names the channel to search. Empty selects the first
	// channel of type Stim.
	StimChannel string
	// Mask, if non-zero, is ANDed with every stim value before detection.
	Mask int
}

// FindEvents returns every rising step of the stim channel in chronological
// order. The value present at the first sample is not reported as an event,
// and steps back down (trigger offsets) are ignored.
func (r *Recording) FindEvents(opts FindOptions) ([]Event, error) {
	idx := -1
	if opts.StimChannel != "" {
		i, ok := r.Channel(opts.StimChannel)
		if !ok {
			return nil, fmt.Errorf("%w: %q not found", ErrNoStimChannel, opts.StimChannel)
		}
		idx = i
	} else if picks := r.Picks(Stim); len(picks) > 0 {
		idx = picks[0]
	}
	if idx < 0 {
		return nil, ErrNoStimChannel
	}

	data := r.Data[idx]
	value := func(i int) int {
		v := int(math.Round(data[i]))
		if opts.Mask != 0 {
			v &= opts.Mask
		}
		return v
	}

	var events []Event
	if len(data) == 0 {
		return events, nil
	}

	prev := value(0)
	for i := 1; i < len(data); i++ {
		cur := value(i)
		if cur > prev && cur != 0 {
			events = append(events, Event{Sample: i, Previous: prev, Code: cur})
		}
		prev = cur
	}

	return events, nil
}
