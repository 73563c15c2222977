// Copyright 2026 The Keyfold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/keyfold/keyfold/internal/observability/logger"
)

// Janitor periodically removes expired refresh tokens and stale blacklist
// entries so both tables stay bounded by the active token population.
type Janitor struct {
	refresh  *Manager
	denylist *Denylist
	interval time.Duration
}

// NewJanitor creates a cleanup scheduler
func NewJanitor(refresh *Manager, denylist *Denylist, interval time.Duration) *Janitor {
	return &Janitor{
		refresh:  refresh,
		denylist: denylist,
		interval: interval,
	}
}

// Sweep runs one cleanup pass. A failure in one table does not stop the
// sweep of the other; the first error is returned.
func (j *Janitor) Sweep(ctx context.Context) error {
	var firstErr error

	refreshRemoved, err := j.refresh.CleanExpired(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clean expired refresh tokens", logger.Error(err))
		firstErr = err
	}

	revokedRemoved, err := j.denylist.CleanExpired(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clean expired blacklist entries", logger.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if refreshRemoved > 0 || revokedRemoved > 0 {
		slog.InfoContext(ctx, "token cleanup sweep finished",
			slog.Int64("refresh_tokens_removed", refreshRemoved),
			slog.Int64("blacklist_entries_removed", revokedRemoved),
		)
	}

	return firstErr
}

// Run sweeps on the configured interval until the context is cancelled.
// Errors are logged, never fatal: a failed sweep retries on the next tick.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "token janitor started", slog.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "token janitor stopped")
			return
		case <-ticker.C:
			_ = j.Sweep(ctx)
		}
	}
}
