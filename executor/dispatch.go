package executor

import (
	"context"
	"time"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/pkg/retry"
	"github.com/c360/chatrules/types/rule"
)

// DefaultCallTimeout bounds one executor call
const DefaultCallTimeout = 5 * time.Second

// Dispatcher wraps a Registry with per-call timeouts and classified
// retries. Transient failures (timeout, rate limit, network) are retried
// with exponential backoff; invalid failures (bad recipient, validation)
// are permanent and fail immediately.
type Dispatcher struct {
	registry    *Registry
	callTimeout time.Duration
	retryCfg    retry.Config
}

// NewDispatcher creates a dispatcher around a registry
func NewDispatcher(registry *Registry, callTimeout time.Duration, retryCfg retry.Config) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Dispatcher{
		registry:    registry,
		callTimeout: callTimeout,
		retryCfg:    retryCfg,
	}
}

// Dispatch executes one action with timeout and retry. onRetry is invoked
// after each failed attempt that will be retried, letting the caller
// append a failed_retrying audit row per attempt. The returned error is
// nil on success; a permanent or retry-exhausted error otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID string, action rule.Action, onRetry func(attempt int, err error)) error {
	cfg := d.retryCfg
	cfg.OnAttempt = onRetry

	return retry.Do(ctx, cfg, func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		err := d.registry.Execute(callCtx, conversationID, action)
		if err == nil {
			return nil
		}
		if errors.IsInvalid(err) {
			// Validation-class failures will not succeed on retry
			return retry.Permanent(err)
		}
		return err
	})
}
