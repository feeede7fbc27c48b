// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package pipeline runs the full preprocessing chain over every matched
// participant: load, annotate, drop training trials, epoch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/OpenPSG/eegprep/config"
	"github.com/OpenPSG/eegprep/edf"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/internal/store"
	"github.com/OpenPSG/eegprep/participant"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/OpenPSG/eegprep/triggermap"
	"github.com/OpenPSG/eegprep/triggers"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store records run outcomes. *store.Store satisfies it.
type Store interface {
	StartRun(ctx context.Context, eegDir, behDir string) (store.Run, error)
	RecordOutcome(ctx context.Context, o store.Outcome) error
	FinishRun(ctx context.Context, runID string) error
}

// Result is the outcome of a run, one entry per recording file.
type Result struct {
	RunID    string
	Outcomes []store.Outcome
}

// Count returns the number of outcomes with the given status.
func (r *Result) Count(status store.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Epochs returns the total number of epochs cut in the run.
func (r *Result) Epochs() int {
	n := 0
	for _, o := range r.Outcomes {
		for _, ec := range o.Epochs {
			n += ec.Epochs
		}
	}
	return n
}

// Pipeline processes a directory pair according to a configuration.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	store  Store
}

// New creates a pipeline. A nil store disables persistence.
func New(cfg *config.Config, logger *slog.Logger, st Store) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logging.Or(logger), store: st}
}

// Run matches participants and processes each of them, up to cfg.Workers at
// a time. A failing participant is recorded and does not stop the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	matched, err := participant.Match(p.cfg.EEGDir, p.cfg.BehDir, participant.Options{
		Verbose: p.cfg.Verbose,
		Logger:  p.logger,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.New().String()}
	if p.store != nil {
		run, err := p.store.StartRun(ctx, p.cfg.EEGDir, p.cfg.BehDir)
		if err != nil {
			return nil, err
		}
		res.RunID = run.ID
	}

	for _, skip := range matched.Skips {
		res.Outcomes = append(res.Outcomes, store.Outcome{
			RunID:         res.RunID,
			ParticipantID: skip.ID,
			Status:        store.StatusSkipped,
			Reason:        string(skip.Reason),
		})
	}

	processed := make([]store.Outcome, len(matched.Records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, rec := range matched.Records {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			processed[i] = p.Process(rec)
			processed[i].RunID = res.RunID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Outcomes = append(res.Outcomes, processed...)

	if p.store != nil {
		for _, o := range res.Outcomes {
			if err := p.store.RecordOutcome(ctx, o); err != nil {
				return nil, err
			}
		}
		if err := p.store.FinishRun(ctx, res.RunID); err != nil {
			return nil, err
		}
	}

	logging.Write(p.logger, p.cfg.Verbose, "Run finished",
		"run", res.RunID,
		"ok", humanize.Comma(int64(res.Count(store.StatusOK))),
		"skipped", humanize.Comma(int64(res.Count(store.StatusSkipped))),
		"failed", humanize.Comma(int64(res.Count(store.StatusFailed))),
		"epochs", humanize.Comma(int64(res.Epochs())))

	return res, nil
}

// Process runs the preprocessing chain for one participant.
func (p *Pipeline) Process(rec participant.Record) store.Outcome {
	logger := p.logger.With("participant", rec.ID)
	out := store.Outcome{
		ParticipantID: rec.ID,
		Sex:           rec.Sex,
		Age:           rec.Age,
		Status:        store.StatusOK,
	}
	fail := func(err error) store.Outcome {
		logging.Error(logger, p.cfg.Verbose, "Participant failed", "error", err)
		out.Status = store.StatusFailed
		out.Reason = err.Error()
		return out
	}

	raw, err := recording.Load(rec.RecordingPath, p.cfg.LoadOptions())
	if err != nil {
		return fail(err)
	}
	logging.Write(logger, p.cfg.Verbose, "Loaded recording",
		"channels", len(raw.Channels), "sfreq", raw.SFreq, "duration", raw.Duration())

	rows, err := triggermap.Load(rec.TriggerMapPath)
	if err != nil {
		return fail(err)
	}

	if _, err := triggers.SetAnnotationsFromTriggerMap(raw, rows, p.cfg.TriggerOptions(logger)); err != nil {
		return fail(err)
	}
	out.Annotations = raw.Annotations().Len()

	if p.cfg.DropTraining {
		triggers.DropTrainingAnnotations(raw)
	}

	for _, prefix := range p.cfg.Prefixes {
		ep, err := epochs.Create(raw, prefix, p.cfg.EpochOptions(logger))
		if errors.Is(err, epochs.ErrNoTriggers) {
			out.Epochs = append(out.Epochs, store.EpochCount{Prefix: prefix})
			continue
		} else if err != nil {
			return fail(err)
		}

		out.Epochs = append(out.Epochs, store.EpochCount{
			Prefix:  prefix,
			Epochs:  ep.Len(),
			Dropped: len(ep.Dropped),
			Samples: ep.Samples(),
		})

		if p.cfg.ExportDir != "" {
			if err := p.export(rec.ID, raw, ep); err != nil {
				return fail(err)
			}
		}
	}

	return out
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// exportName returns the file name for the average of label. Labels that
// sanitize to a name already in used get a numeric suffix.
func exportName(id, label string, used map[string]int) string {
	base := unsafeName.ReplaceAllString(fmt.Sprintf("%s_%s", id, label), "-")
	name := base
	for used[name] > 0 {
		used[base]++
		name = fmt.Sprintf("%s-%d", base, used[base])
	}
	used[name]++
	return name + ".bdf"
}

// export writes the per-label averages of ep as BDF files.
func (p *Pipeline) export(id string, raw *recording.Recording, ep *epochs.Epochs) error {
	if err := os.MkdirAll(p.cfg.ExportDir, 0o755); err != nil {
		return err
	}

	used := make(map[string]int)
	for _, ev := range ep.Average() {
		avg, err := ev.Recording(raw.MeasDate)
		if err != nil {
			return err
		}
		name := exportName(id, ev.Label, used)
		if err := recording.Save(filepath.Join(p.cfg.ExportDir, name), avg, edf.VersionBioSemi); err != nil {
			return fmt.Errorf("error exporting evoked %q: %w", ev.Label, err)
		}
	}
	return nil
}
