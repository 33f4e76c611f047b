// Package reconciler periodically recounts unread counters from the message
// log and overwrites the counter store with the authoritative values. It is
// the safety net for lost events, double applies and manual store edits.
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counters-back/internal/model"
	"counters-back/internal/repository"
)

type CounterStore interface {
	UsersWithPeers(ctx context.Context) ([]uuid.UUID, error)
	Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	PeerUnread(ctx context.Context, userID, peerID uuid.UUID) (int64, error)
	LastRead(ctx context.Context, userID, peerID uuid.UUID) (time.Time, error)
	SetPeerUnread(ctx context.Context, userID, peerID uuid.UUID, count int64) error
	SetTotalUnread(ctx context.Context, userID uuid.UUID, total int64) error
}

type MessageLog interface {
	CountUnreadSince(ctx context.Context, ext repository.RepoExtension, conversationKey string, toUser uuid.UUID, since time.Time) (int64, error)
}

type Config struct {
	Enable   bool
	Interval time.Duration
}

type Reconciler struct {
	log      *zap.Logger
	cfg      Config
	store    CounterStore
	messages MessageLog
}

func New(log *zap.Logger, cfg Config, store CounterStore, messages MessageLog) *Reconciler {
	return &Reconciler{
		log:      log,
		cfg:      cfg,
		store:    store,
		messages: messages,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	if !r.cfg.Enable {
		r.log.Info("Reconciler disabled")
		return
	}

	r.log.Info("Reconciler started", zap.Duration("interval", r.cfg.Interval))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reconciler stopped")
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

// pass walks every user known to the store. Per-user failures are logged and
// skipped so one broken key does not abort the whole sweep.
func (r *Reconciler) pass(ctx context.Context) {
	started := time.Now()

	users, err := r.store.UsersWithPeers(ctx)
	if err != nil {
		r.log.Error("Failed to list users for reconciliation", zap.Error(err))
		return
	}

	var corrected int

	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}

		n, err := r.reconcileUser(ctx, userID)
		if err != nil {
			r.log.Error("Failed to reconcile user",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)

			continue
		}

		corrected += n
	}

	r.log.Info("Reconciliation pass finished",
		zap.Int("users", len(users)),
		zap.Int("corrected", corrected),
		zap.Duration("took", time.Since(started)),
	)
}

// reconcileUser recounts each peer counter from the log and overwrites the
// store last-writer-wins. The total is rewritten as the sum of the recounted
// per-peer values, which restores the total invariant in the same pass.
func (r *Reconciler) reconcileUser(ctx context.Context, userID uuid.UUID) (int, error) {
	peers, err := r.store.Peers(ctx, userID)
	if err != nil {
		return 0, err
	}

	var (
		corrected int
		total     int64
	)

	for _, peerID := range peers {
		lastRead, err := r.store.LastRead(ctx, userID, peerID)
		if err != nil {
			return corrected, err
		}

		authoritative, err := r.messages.CountUnreadSince(ctx, nil, model.ConversationKey(userID, peerID), userID, lastRead)
		if err != nil {
			return corrected, err
		}

		current, err := r.store.PeerUnread(ctx, userID, peerID)
		if err != nil {
			return corrected, err
		}

		if current != authoritative {
			if err := r.store.SetPeerUnread(ctx, userID, peerID, authoritative); err != nil {
				return corrected, err
			}

			r.log.Info("Drift corrected",
				zap.String("user_id", userID.String()),
				zap.String("peer_id", peerID.String()),
				zap.Int64("was", current),
				zap.Int64("now", authoritative),
			)

			corrected++
		}

		total += authoritative
	}

	if err := r.store.SetTotalUnread(ctx, userID, total); err != nil {
		return corrected, err
	}

	return corrected, nil
}
