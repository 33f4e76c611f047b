package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

type peerKey struct {
	user uuid.UUID
	peer uuid.UUID
}

// fakeStore is an in-memory CounterStore with per-method error injection.
type fakeStore struct {
	seen     map[uuid.UUID]bool
	totals   map[uuid.UUID]int64
	byPeer   map[peerKey]int64
	lastRead map[peerKey]time.Time

	failIncrement bool
	failDecrement bool
	failPeerRead  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seen:     make(map[uuid.UUID]bool),
		totals:   make(map[uuid.UUID]int64),
		byPeer:   make(map[peerKey]int64),
		lastRead: make(map[peerKey]time.Time),
	}
}

func (s *fakeStore) MarkEventSeen(_ context.Context, eventID uuid.UUID) (bool, error) {
	if s.seen[eventID] {
		return false, nil
	}

	s.seen[eventID] = true

	return true, nil
}

func (s *fakeStore) ClearEventSeen(_ context.Context, eventID uuid.UUID) error {
	delete(s.seen, eventID)
	return nil
}

func (s *fakeStore) IncrementUnread(_ context.Context, userID, peerID uuid.UUID) error {
	if s.failIncrement {
		return errors.New("store unavailable")
	}

	s.totals[userID]++
	s.byPeer[peerKey{userID, peerID}]++

	return nil
}

func (s *fakeStore) DecrementUnread(_ context.Context, userID, peerID uuid.UUID, peerDelta, totalDelta int64, lastRead time.Time) error {
	if s.failDecrement {
		return errors.New("store unavailable")
	}

	s.byPeer[peerKey{userID, peerID}] -= peerDelta
	s.totals[userID] -= totalDelta

	if !lastRead.IsZero() {
		s.lastRead[peerKey{userID, peerID}] = lastRead
	}

	return nil
}

func (s *fakeStore) TotalUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	return s.totals[userID], nil
}

func (s *fakeStore) PeerUnread(_ context.Context, userID, peerID uuid.UUID) (int64, error) {
	if s.failPeerRead {
		return 0, errors.New("store unavailable")
	}

	return s.byPeer[peerKey{userID, peerID}], nil
}

func sentEvent(from, to uuid.UUID) model.MessageSentEvent {
	return model.MessageSentEvent{
		EventID:    uuid.New(),
		FromUserID: from,
		ToUserID:   to,
		MessageID:  uuid.New(),
	}
}

func readEvent(user, peer uuid.UUID, delta int64) model.MessagesReadEvent {
	return model.MessagesReadEvent{
		EventID:    uuid.New(),
		UserID:     user,
		PeerUserID: peer,
		Delta:      delta,
		LastReadTS: time.Now().UTC(),
	}
}

func TestApplyMessageSent(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 3 {
		applied, err := svc.ApplyMessageSent(ctx, sentEvent(bob, alice))
		require.NoError(t, err)
		assert.True(t, applied)
	}

	assert.Equal(t, int64(3), store.totals[alice])
	assert.Equal(t, int64(3), store.byPeer[peerKey{alice, bob}])
}

func TestApplyMessageSent_Redelivery(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	event := sentEvent(bob, alice)

	applied, err := svc.ApplyMessageSent(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)

	// same event id delivered again must not double count
	applied, err = svc.ApplyMessageSent(ctx, event)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, int64(1), store.totals[alice])
	assert.Equal(t, int64(1), store.byPeer[peerKey{alice, bob}])
}

func TestApplyMessageSent_TransientFailureClearsMarker(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	event := sentEvent(bob, alice)

	store.failIncrement = true

	_, err := svc.ApplyMessageSent(ctx, event)
	require.Error(t, err)

	// the retry after the failure must succeed, not be treated as a duplicate
	store.failIncrement = false

	applied, err := svc.ApplyMessageSent(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1), store.totals[alice])
}

func TestApplyMessageSent_InvalidPayload(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()

	svc := NewApplyService(zap.NewNop(), newFakeStore())

	cases := []struct {
		name  string
		event model.MessageSentEvent
	}{
		{"missing event id", model.MessageSentEvent{FromUserID: uuid.New(), ToUserID: alice}},
		{"missing sender", model.MessageSentEvent{EventID: uuid.New(), ToUserID: alice}},
		{"self message", model.MessageSentEvent{EventID: uuid.New(), FromUserID: alice, ToUserID: alice}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyMessageSent(ctx, tc.event)
			assert.ErrorIs(t, err, apperrors.ErrInvalidEventPayload)
		})
	}
}

func TestApplyMessagesRead(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 5 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(bob, alice))
		require.NoError(t, err)
	}

	applied, err := svc.ApplyMessagesRead(ctx, readEvent(alice, bob, 3))
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, int64(2), store.totals[alice])
	assert.Equal(t, int64(2), store.byPeer[peerKey{alice, bob}])
}

func TestApplyMessagesRead_ClampsAtZero(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 2 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(bob, alice))
		require.NoError(t, err)
	}

	// delta exceeds the current counter: clamp instead of going negative
	applied, err := svc.ApplyMessagesRead(ctx, readEvent(alice, bob, 10))
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, int64(0), store.totals[alice])
	assert.Equal(t, int64(0), store.byPeer[peerKey{alice, bob}])
}

func TestApplyMessagesRead_IndependentClamps(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	// drifted state: per-peer says 4 but total says 1
	store.byPeer[peerKey{alice, bob}] = 4
	store.totals[alice] = 1

	applied, err := svc.ApplyMessagesRead(ctx, readEvent(alice, bob, 3))
	require.NoError(t, err)
	assert.True(t, applied)

	// per-peer decremented by full 3, total clamped at its own value
	assert.Equal(t, int64(1), store.byPeer[peerKey{alice, bob}])
	assert.Equal(t, int64(0), store.totals[alice])
}

func TestApplyMessagesRead_Redelivery(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 4 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(bob, alice))
		require.NoError(t, err)
	}

	event := readEvent(alice, bob, 2)

	applied, err := svc.ApplyMessagesRead(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ApplyMessagesRead(ctx, event)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, int64(2), store.totals[alice])
	assert.Equal(t, int64(2), store.byPeer[peerKey{alice, bob}])
}

func TestApplyMessagesRead_TransientFailureClearsMarker(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	_, err := svc.ApplyMessageSent(ctx, sentEvent(bob, alice))
	require.NoError(t, err)

	event := readEvent(alice, bob, 1)

	store.failDecrement = true

	_, err = svc.ApplyMessagesRead(ctx, event)
	require.Error(t, err)

	store.failDecrement = false

	applied, err := svc.ApplyMessagesRead(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(0), store.totals[alice])
}

func TestApplyMessagesRead_InvalidPayload(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	svc := NewApplyService(zap.NewNop(), newFakeStore())

	cases := []struct {
		name  string
		event model.MessagesReadEvent
	}{
		{"missing event id", model.MessagesReadEvent{UserID: alice, PeerUserID: bob, Delta: 1}},
		{"same peer", model.MessagesReadEvent{EventID: uuid.New(), UserID: alice, PeerUserID: alice, Delta: 1}},
		{"negative delta", model.MessagesReadEvent{EventID: uuid.New(), UserID: alice, PeerUserID: bob, Delta: -1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyMessagesRead(ctx, tc.event)
			assert.ErrorIs(t, err, apperrors.ErrInvalidEventPayload)
		})
	}
}

func TestApply_ReadInStages(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 10 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(alice, bob))
		require.NoError(t, err)
	}

	want := []int64{7, 3, 0}

	for i, delta := range []int64{3, 4, 3} {
		_, err := svc.ApplyMessagesRead(ctx, readEvent(bob, alice, delta))
		require.NoError(t, err)
		assert.Equal(t, want[i], store.byPeer[peerKey{bob, alice}])
	}

	assert.Equal(t, int64(0), store.totals[bob])
}

func TestApply_ReadOnePeerLeavesOthersUntouched(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	carol := uuid.New()
	rick := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 5 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(alice, rick))
		require.NoError(t, err)
	}

	for range 3 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(carol, rick))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(8), store.totals[rick])

	_, err := svc.ApplyMessagesRead(ctx, readEvent(rick, alice, 2))
	require.NoError(t, err)

	assert.Equal(t, int64(6), store.totals[rick])
	assert.Equal(t, int64(3), store.byPeer[peerKey{rick, alice}])
	assert.Equal(t, int64(3), store.byPeer[peerKey{rick, carol}])
}

func TestApply_TotalStaysSumOfPeers(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	store := newFakeStore()
	svc := NewApplyService(zap.NewNop(), store)

	for range 3 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(bob, alice))
		require.NoError(t, err)
	}

	for range 2 {
		_, err := svc.ApplyMessageSent(ctx, sentEvent(carol, alice))
		require.NoError(t, err)
	}

	_, err := svc.ApplyMessagesRead(ctx, readEvent(alice, bob, 3))
	require.NoError(t, err)

	sum := store.byPeer[peerKey{alice, bob}] + store.byPeer[peerKey{alice, carol}]
	assert.Equal(t, store.totals[alice], sum)
	assert.Equal(t, int64(2), store.totals[alice])
}
