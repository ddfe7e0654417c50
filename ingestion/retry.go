// Copyright 2025 Poiesic Systems
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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/poiesic/vectorload/core"
)

// Backoff shapes the wait between attempts: min(Cap, Base*2^(attempt-1))
// plus a uniform jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
}

// DefaultBackoff waits 1s, 2s, 4s ... up to 30s, plus up to 500ms of jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Cap:    30 * time.Second,
		Jitter: 500 * time.Millisecond,
	}
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if b.Cap > 0 && delay >= b.Cap {
			break
		}
		delay *= 2
	}
	if b.Cap > 0 && delay > b.Cap {
		delay = b.Cap
	}
	if b.Jitter > 0 {
		delay += rand.N(b.Jitter)
	}
	return delay
}

// Retryable reports whether err is worth another attempt while ctx is live.
// A per-call deadline counts as transient as long as the caller's own
// context has not ended.
func Retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if core.IsPermanent(err) {
		return false
	}
	return core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// RetryWithBackoff retries operation while Retryable holds, at most
// maxAttempts times in total. onRetry, when set, is called before each wait.
// Returns the error from the last attempt if all attempts fail, or the
// context error if ctx ends during a wait.
func RetryWithBackoff(
	ctx context.Context,
	backoff Backoff,
	maxAttempts int,
	onRetry func(attempt int, delay time.Duration, err error),
	operation func(ctx context.Context) error,
) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts || !Retryable(ctx, lastErr) {
			break
		}

		delay := backoff.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return lastErr
}
