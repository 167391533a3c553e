package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/webhook"
)

const waitFor = time.Second

// memoryStore is an in-memory SuppressionStore
type memoryStore struct {
	mu        sync.Mutex
	records   []model.NotificationSuppression
	findErr   error
	createErr error
}

func (s *memoryStore) FindActive(_ context.Context, notificationType, entityID string, now time.Time) (*model.NotificationSuppression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for i := range s.records {
		r := s.records[i]
		if r.Type == notificationType && r.EntityID == entityID && r.ExpiresAt.After(now) {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) Create(_ context.Context, record *model.NotificationSuppression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	record.ID = primitive.NewObjectID()
	s.records = append(s.records, *record)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memoryStore) snapshot() []model.NotificationSuppression {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationSuppression(nil), s.records...)
}

// fakeSender records payloads; it can fail or hold each send until released
type fakeSender struct {
	mu       sync.Mutex
	payloads []webhook.Payload
	err      error
	attempts atomic.Int32
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, payload webhook.Payload, _ string) (*webhook.Delivery, error) {
	f.attempts.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return &webhook.Delivery{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return &webhook.Delivery{}, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &webhook.Delivery{Delivered: true}, nil
}

func (f *fakeSender) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSender) delivered(n int) func() bool {
	return func() bool { return f.count() == n }
}

func newTestGateway(t *testing.T, store *memoryStore, sender *fakeSender, now *time.Time, opts ...GatewayOption) *Gateway {
	t.Helper()
	opts = append([]GatewayOption{WithClock(func() time.Time { return *now }), WithUsername("Renewer")}, opts...)
	g := NewGateway(store, sender, opts...)
	g.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		g.Stop(ctx)
	})
	return g
}

func TestGateway_SuppressesRepeatWithinWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := &memoryStore{}
	sender := &fakeSender{}
	g := newTestGateway(t, store, sender, &now)

	n := Notification{Type: TypeExpired, EntityID: "acc-1", Message: "expired"}

	assert.True(t, g.Notify(context.Background(), n))
	now = now.Add(time.Hour)
	assert.False(t, g.Notify(context.Background(), n))

	assert.Eventually(t, sender.delivered(1), waitFor, 5*time.Millisecond)
	records := store.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, now.Add(-time.Hour).Add(24*time.Hour), records[0].ExpiresAt)
}

func TestGateway_SendsAgainAfterWindowExpires(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	g := newTestGateway(t, &memoryStore{}, sender, &now)

	n := Notification{Type: TypeAutomationOffline, EntityID: model.HealthRecordID, Message: "offline"}

	assert.True(t, g.Notify(context.Background(), n))
	now = now.Add(31 * time.Minute)
	assert.True(t, g.Notify(context.Background(), n))

	assert.Eventually(t, sender.delivered(2), waitFor, 5*time.Millisecond)
}

func TestGateway_DifferentEntitiesAreIndependent(t *testing.T) {
	now := time.Now()
	sender := &fakeSender{}
	g := newTestGateway(t, &memoryStore{}, sender, &now)

	assert.True(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "a"}))
	assert.True(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "b"}))
	assert.True(t, g.Notify(context.Background(), Notification{Type: TypeExpiringSoon, EntityID: "a"}))

	assert.Eventually(t, sender.delivered(3), waitFor, 5*time.Millisecond)
}

func TestGateway_FailedDeliveryReleasesWindow(t *testing.T) {
	now := time.Now()
	store := &memoryStore{}
	sender := &fakeSender{err: errors.New("channel down")}
	g := newTestGateway(t, store, sender, &now)

	n := Notification{Type: TypeExpired, EntityID: "acc-1"}
	assert.True(t, g.Notify(context.Background(), n))
	assert.Eventually(t, func() bool { return sender.attempts.Load() == 1 && len(store.snapshot()) == 0 }, waitFor, 5*time.Millisecond)

	sender.setErr(nil)
	assert.True(t, g.Notify(context.Background(), n), "alert accepted again after a failed delivery")
	assert.Eventually(t, sender.delivered(1), waitFor, 5*time.Millisecond)
	assert.Len(t, store.snapshot(), 1)
}

func TestGateway_ZeroWindowNeverSuppresses(t *testing.T) {
	now := time.Now()
	store := &memoryStore{}
	sender := &fakeSender{}
	g := newTestGateway(t, store, sender, &now)

	n := Notification{Type: TypeRenewalSucceeded, EntityID: "acc-1"}
	assert.True(t, g.Notify(context.Background(), n))
	assert.True(t, g.Notify(context.Background(), n))

	assert.Eventually(t, sender.delivered(2), waitFor, 5*time.Millisecond)
	assert.Empty(t, store.snapshot())
}

func TestGateway_SuppressionOverride(t *testing.T) {
	now := time.Now()
	store := &memoryStore{}
	g := newTestGateway(t, store, &fakeSender{}, &now)

	window := 5 * time.Minute
	g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "acc-1", Suppression: &window})

	records := store.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, now.Add(window), records[0].ExpiresAt)
}

func TestGateway_StoreErrorStillDelivers(t *testing.T) {
	now := time.Now()
	store := &memoryStore{findErr: errors.New("db down")}
	sender := &fakeSender{}
	g := newTestGateway(t, store, sender, &now)

	assert.True(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "acc-1"}))
	assert.Eventually(t, sender.delivered(1), waitFor, 5*time.Millisecond)
}

func TestGateway_ConcurrentIdenticalAlertsDeliverOnce(t *testing.T) {
	now := time.Now()
	sender := &fakeSender{}
	g := newTestGateway(t, &memoryStore{}, sender, &now)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Notify(context.Background(), Notification{Type: TypeAutomationOffline, EntityID: model.HealthRecordID}) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, accepted.Load())
	assert.Eventually(t, sender.delivered(1), waitFor, 5*time.Millisecond)
}

func TestGateway_SlowChannelDoesNotBlockCaller(t *testing.T) {
	now := time.Now()
	sender := &fakeSender{release: make(chan struct{})}
	g := newTestGateway(t, &memoryStore{}, sender, &now)
	defer close(sender.release)

	start := time.Now()
	for i, entity := range []string{"a", "b", "c"} {
		assert.True(t, g.Notify(context.Background(), Notification{Type: TypeRenewalFailed, EntityID: entity}), "alert %d", i)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Zero(t, sender.count())
}

func TestGateway_FullQueueDropsAndReleases(t *testing.T) {
	now := time.Now()
	store := &memoryStore{}
	sender := &fakeSender{started: make(chan struct{}, 4), release: make(chan struct{})}
	g := newTestGateway(t, store, sender, &now, WithQueueSize(1))
	defer close(sender.release)

	require.True(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "held"}))
	<-sender.started

	assert.True(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "queued"}))
	assert.False(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "dropped"}))

	for _, r := range store.snapshot() {
		assert.NotEqual(t, "dropped", r.EntityID)
	}
}

func TestGateway_NotStartedDropsAndReleases(t *testing.T) {
	store := &memoryStore{}
	sender := &fakeSender{}
	g := NewGateway(store, sender)

	assert.False(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "acc-1"}))
	assert.Empty(t, store.snapshot())
	assert.Zero(t, sender.attempts.Load())
}

func TestGateway_StopDrainsQueue(t *testing.T) {
	now := time.Now()
	sender := &fakeSender{}
	g := NewGateway(&memoryStore{}, sender, WithClock(func() time.Time { return now }))
	g.Start(context.Background())

	for _, entity := range []string{"a", "b", "c", "d"} {
		g.Notify(context.Background(), Notification{Type: TypeRenewalSucceeded, EntityID: entity})
	}
	g.Stop(context.Background())

	assert.Equal(t, 4, sender.count())
	assert.False(t, g.Notify(context.Background(), Notification{Type: TypeRenewalSucceeded, EntityID: "late"}))
}

func TestGateway_Disabled(t *testing.T) {
	sender := &fakeSender{}
	g := NewGateway(&memoryStore{}, sender, Disabled())
	g.Start(context.Background())
	defer g.Stop(context.Background())

	assert.False(t, g.Notify(context.Background(), Notification{Type: TypeExpired, EntityID: "acc-1"}))
	assert.Zero(t, sender.attempts.Load())
}

func TestGateway_PayloadCarriesEmbed(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	g := newTestGateway(t, &memoryStore{}, sender, &now)

	expires := now.Add(-time.Minute)
	account := &model.Account{SystemID: "acc-9", ExpiresAt: &expires}
	g.Notify(context.Background(), ExpiredAlert(account, "trace-9"))

	require.Eventually(t, sender.delivered(1), waitFor, 5*time.Millisecond)
	sender.mu.Lock()
	p := sender.payloads[0]
	sender.mu.Unlock()

	assert.Equal(t, "Account acc-9 has expired", p.Content)
	assert.Equal(t, "Renewer", p.Username)
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, webhook.SeverityError.Color(), p.Embeds[0].Color)
	assert.Equal(t, "2026-05-01T10:00:00Z", p.Embeds[0].Timestamp)
}
