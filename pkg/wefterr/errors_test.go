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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "channel %q unknown", "global:dev")
	assert.Equal(t, KindNotFound, KindOf(err))

	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, cause, "insert failed")
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
}

func TestUserMessageRedactsInternal(t *testing.T) {
	err := Wrap(KindInternal, errors.New("sqlite: malformed database"), "store failure")
	assert.Equal(t, "internal error", err.UserMessage())

	denied := New(KindPermissionDenied, "you are not a member of global:dev")
	assert.Equal(t, "you are not a member of global:dev", denied.UserMessage())
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return New(KindInvalidInput, "bad name")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesBusyThenSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return New(KindBusy, "database locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterThreeAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return New(KindConflict, "writer collision")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := Retry(ctx, func() error {
		calls++
		return New(KindBusy, "database locked")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
