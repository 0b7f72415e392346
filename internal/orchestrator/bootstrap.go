package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/rpc"
)

// awaitExecProcedure pings the exec procedure up to attempts times, delay
// apart. Only "procedure not found" is retried; any other error aborts.
func awaitExecProcedure(ctx context.Context, remote Remote, attempts int, delay time.Duration, log logrus.FieldLogger) error {
	if attempts < 1 {
		attempts = 1
	}

	tried := 0
	operation := func() error {
		tried++
		err := remote.Ping(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, rpc.ErrProcedureNotFound) {
			log.WithFields(logrus.Fields{"attempt": tried, "max_attempts": attempts}).Warn("exec procedure not available yet")
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, rpc.ErrProcedureNotFound) {
			return fmt.Errorf("exec procedure still unavailable after %d attempts: %w", tried, err)
		}
		return fmt.Errorf("exec procedure check failed: %w", err)
	}

	log.WithField("attempts", tried).Info("exec procedure available")
	return nil
}
