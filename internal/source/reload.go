package source

import (
	"context"
	"fmt"

	"github.com/darmiel/warrant/internal/logging"
	"github.com/darmiel/warrant/internal/policy"
	"github.com/darmiel/warrant/internal/validation"
)

// ReloadTask fetches all role documents and publishes them as a new snapshot.
// A failed fetch or an invalid document keeps the current snapshot.
func ReloadTask(fetcher Fetcher, store *policy.Store, knownIssuers map[string]struct{}) func(context.Context, logging.InternalLogger) error {
	return func(ctx context.Context, logger logging.InternalLogger) error {
		roles, err := fetcher.Fetch(ctx, logger)
		if err != nil {
			return fmt.Errorf("fetching roles: %w", err)
		}

		snap, err := store.Replace(roles)
		if err != nil {
			return fmt.Errorf("publishing roles: %w", err)
		}

		for _, id := range snap.Withdrawn {
			logger.Warn("Withdrew role %s, it is no longer defined", id)
		}
		for _, id := range snap.Overridden {
			logger.Info("Ignoring document for role %s, it was published through the admin api", id)
		}
		for _, role := range snap.Roles() {
			for _, finding := range validation.Lint(role, knownIssuers) {
				logger.Warn("%s", finding)
			}
		}
		logger.Info("Published revision %d with %d roles", snap.Revision, len(snap.Roles()))
		return nil
	}
}
