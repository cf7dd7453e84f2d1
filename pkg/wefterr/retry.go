// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wefterr

import (
	"context"
	"time"
)

// retryAttempts bounds Retry to three tries total.
const retryAttempts = 3

// retryBaseDelay is the first backoff step; it doubles per attempt.
const retryBaseDelay = 50 * time.Millisecond

// Retryable reports whether an error is a transient writer collision or
// lock timeout worth retrying.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindBusy
}

// Retry runs fn up to three times, backing off exponentially between
// attempts when fn fails with CONFLICT or BUSY. Any other error, a
// success, or context cancellation ends the loop immediately.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBaseDelay
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = fn()
		if err == nil || !Retryable(err) {
			return err
		}
	}
	return err
}
