package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"counters-back/internal/model"
	"counters-back/pkg/redis"
)

const scanBatchSize = 100

// CounterRepository is the redis-backed counter store. Key layout:
//
//	user:{id}:unread_total          integer
//	user:{id}:unread_by_peer        hash peer_id -> integer
//	user:{id}:last_read:{peer_id}   RFC3339 timestamp
//	event_dedup:{event_id}          presence flag with TTL
//
// All mutations are single-key atomic ops or one pipeline; there is no
// cross-writer locking between the consumer and the reconciler.
type CounterRepository struct {
	rdb      redis.Redis
	dedupTTL time.Duration
}

func NewCounterRepository(rdb redis.Redis, dedupTTL time.Duration) *CounterRepository {
	return &CounterRepository{
		rdb:      rdb,
		dedupTTL: dedupTTL,
	}
}

func totalKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:unread_total", userID)
}

func byPeerKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:unread_by_peer", userID)
}

func lastReadKey(userID, peerID uuid.UUID) string {
	return fmt.Sprintf("user:%s:last_read:%s", userID, peerID)
}

func dedupKey(eventID uuid.UUID) string {
	return fmt.Sprintf("event_dedup:%s", eventID)
}

// MarkEventSeen sets the dedup marker and reports whether this delivery is
// the first one. The marker expires after the configured TTL.
func (r *CounterRepository) MarkEventSeen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	first, err := r.rdb.RDB().SetNX(ctx, dedupKey(eventID), 1, r.dedupTTL).Result()
	if err != nil {
		return false, err
	}

	return first, nil
}

func (r *CounterRepository) ClearEventSeen(ctx context.Context, eventID uuid.UUID) error {
	return r.rdb.RDB().Del(ctx, dedupKey(eventID)).Err()
}

func (r *CounterRepository) IncrementUnread(ctx context.Context, userID, peerID uuid.UUID) error {
	pipe := r.rdb.RDB().TxPipeline()
	pipe.Incr(ctx, totalKey(userID))
	pipe.HIncrBy(ctx, byPeerKey(userID), peerID.String(), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return nil
}

func (r *CounterRepository) DecrementUnread(ctx context.Context, userID, peerID uuid.UUID, peerDelta, totalDelta int64, lastRead time.Time) error {
	pipe := r.rdb.RDB().TxPipeline()

	if peerDelta > 0 {
		pipe.HIncrBy(ctx, byPeerKey(userID), peerID.String(), -peerDelta)
	}

	if totalDelta > 0 {
		pipe.DecrBy(ctx, totalKey(userID), totalDelta)
	}

	if !lastRead.IsZero() {
		pipe.Set(ctx, lastReadKey(userID, peerID), lastRead.UTC().Format(time.RFC3339Nano), 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return nil
}

func (r *CounterRepository) TotalUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	total, err := r.rdb.RDB().Get(ctx, totalKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}

		return 0, err
	}

	return total, nil
}

func (r *CounterRepository) PeerUnread(ctx context.Context, userID, peerID uuid.UUID) (int64, error) {
	count, err := r.rdb.RDB().HGet(ctx, byPeerKey(userID), peerID.String()).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}

		return 0, err
	}

	return count, nil
}

// LastRead returns the zero time when the user has never read the peer.
func (r *CounterRepository) LastRead(ctx context.Context, userID, peerID uuid.UUID) (time.Time, error) {
	raw, err := r.rdb.RDB().Get(ctx, lastReadKey(userID, peerID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last read marker: %w", err)
	}

	return ts, nil
}

func (r *CounterRepository) Counters(ctx context.Context, userID uuid.UUID) (*model.CounterState, error) {
	total, err := r.TotalUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields, err := r.rdb.RDB().HGetAll(ctx, byPeerKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	byPeer := make(map[uuid.UUID]int64, len(fields))

	for field, raw := range fields {
		peerID, err := uuid.Parse(field)
		if err != nil {
			return nil, fmt.Errorf("failed to parse peer id %q: %w", field, err)
		}

		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse peer counter %q: %w", raw, err)
		}

		byPeer[peerID] = count
	}

	return &model.CounterState{
		UserID:      userID,
		TotalUnread: total,
		ByPeer:      byPeer,
	}, nil
}

// UsersWithPeers enumerates users that currently have a by-peer hash,
// scanning instead of KEYS to avoid blocking the store.
func (r *CounterRepository) UsersWithPeers(ctx context.Context) ([]uuid.UUID, error) {
	var (
		users  []uuid.UUID
		cursor uint64
	)

	for {
		keys, next, err := r.rdb.RDB().Scan(ctx, cursor, "user:*:unread_by_peer", scanBatchSize).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			parts := strings.Split(key, ":")
			if len(parts) != 3 {
				continue
			}

			userID, err := uuid.Parse(parts[1])
			if err != nil {
				continue
			}

			users = append(users, userID)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return users, nil
}

func (r *CounterRepository) Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	fields, err := r.rdb.RDB().HKeys(ctx, byPeerKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	peers := make([]uuid.UUID, 0, len(fields))

	for _, field := range fields {
		peerID, err := uuid.Parse(field)
		if err != nil {
			continue
		}

		peers = append(peers, peerID)
	}

	return peers, nil
}

func (r *CounterRepository) SetPeerUnread(ctx context.Context, userID, peerID uuid.UUID, count int64) error {
	return r.rdb.RDB().HSet(ctx, byPeerKey(userID), peerID.String(), count).Err()
}

func (r *CounterRepository) SetTotalUnread(ctx context.Context, userID uuid.UUID, total int64) error {
	return r.rdb.RDB().Set(ctx, totalKey(userID), total, 0).Err()
}
