package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ReputationRepository reads the set of currently banned addresses that the
// upstream reputation system maintains in Redis. It implements
// domain.ReputationService; the denylist cache owns the TTL, this adapter is
// a point-in-time read.
type ReputationRepository struct {
	client *redis.Client
	setKey string
	logger *slog.Logger
}

// NewReputationRepository creates a repository reading the given set key.
func NewReputationRepository(client *redis.Client, setKey string, logger *slog.Logger) *ReputationRepository {
	return &ReputationRepository{
		client: client,
		setKey: setKey,
		logger: logger.With("component", "reputation_repository"),
	}
}

// ListBannedAddresses returns every member of the banned-address set.
func (r *ReputationRepository) ListBannedAddresses(ctx context.Context) ([]string, error) {
	addresses, err := r.client.SMembers(ctx, r.setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read banned-address set %q: %w", r.setKey, err)
	}
	return addresses, nil
}
