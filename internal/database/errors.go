// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package database

import (
	"context"
	"strings"
	"time"
)

// isTransactionConflict reports whether err is DuckDB's optimistic
// concurrency conflict, the only error class this package retries.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "cannot update a table that has been altered")
}

// withRetry runs fn up to 3 attempts total, retrying only on transaction
// conflicts with capped exponential backoff (§7's DatabaseTransient kind).
// Any other error, or exhausting all attempts, returns immediately.
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransactionConflict(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Millisecond * time.Duration(1<<uint(attempt)*10)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
