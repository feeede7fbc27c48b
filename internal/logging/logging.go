// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package logging builds the slog loggers used across eegprep.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New returns a logger writing to w. Format is "text" or "json".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return slog.New(handler), nil
}

// Or returns l, or the default logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Write emits msg at info level when enabled is set.
func Write(l *slog.Logger, enabled bool, msg string, args ...any) {
	write(l, enabled, slog.LevelInfo, msg, args...)
}

// Error emits msg at error level when enabled is set.
func Error(l *slog.Logger, enabled bool, msg string, args ...any) {
	write(l, enabled, slog.LevelError, msg, args...)
}

// Warn emits msg at warn level when enabled is set.
func Warn(l *slog.Logger, enabled bool, msg string, args ...any) {
	write(l, enabled, slog.LevelWarn, msg, args...)
}

func write(l *slog.Logger, enabled bool, level slog.Level, msg string, args ...any) {
	if !enabled {
		return
	}
	Or(l).Log(context.Background(), level, msg, args...)
}
