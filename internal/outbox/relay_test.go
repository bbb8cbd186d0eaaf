package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	failures int
	msgs     []*nats.Msg
}

func (f *fakePublisher) PublishMsg(msg *nats.Msg) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("nats unavailable")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func newTestRelay(pub natsPublisher, retryMax int) *Relay {
	r := NewRelay(nil, nil, zap.NewNop(), RelayConfig{RetryMax: retryMax})
	r.publisher = pub
	return r
}

func TestPublishWithRetryRecoversFromTransientFailure(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	r := newTestRelay(pub, 2)

	row := outboxRow{ID: 7, Subject: "trip.created", Payload: []byte(`{"trip_id":7}`), CreatedAt: time.Now()}
	require.NoError(t, r.publishWithRetry(context.Background(), row))

	require.Len(t, pub.msgs, 1)
	require.Equal(t, "trip.created", pub.msgs[0].Subject)
	require.JSONEq(t, `{"trip_id":7}`, string(pub.msgs[0].Data))
}

func TestPublishWithRetryExhaustsAttempts(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	r := newTestRelay(pub, 2)

	row := outboxRow{ID: 7, Subject: "trip.created", Payload: []byte(`{"trip_id":7}`), CreatedAt: time.Now()}
	err := r.publishWithRetry(context.Background(), row)
	require.Error(t, err)

	// two attempts consumed, nothing delivered
	require.Equal(t, 8, pub.failures)
	require.Empty(t, pub.msgs)
}

func TestPublishWithRetryStopsOnCancelledContext(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	r := newTestRelay(pub, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	row := outboxRow{ID: 7, Subject: "trip.created", Payload: []byte(`{"trip_id":7}`), CreatedAt: time.Now()}
	err := r.publishWithRetry(ctx, row)
	require.ErrorIs(t, err, context.Canceled)

	// cancelled during the first backoff, well before exhausting retries
	require.Equal(t, 9, pub.failures)
}

func TestPublishWithRetryRejectsMissingSubject(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRelay(pub, 3)

	err := r.publishWithRetry(context.Background(), outboxRow{ID: 7})
	require.Error(t, err)
	require.Empty(t, pub.msgs)
}

func TestMarkPublishedQuery(t *testing.T) {
	query, args := markPublishedQuery([]int64{3, 5, 8})

	require.Equal(t, "UPDATE trip_outbox SET published = true WHERE id IN ($1,$2,$3)", query)
	require.Equal(t, []any{int64(3), int64(5), int64(8)}, args)
}

func TestRunRequiresBackends(t *testing.T) {
	r := NewRelay(nil, nil, zap.NewNop(), RelayConfig{})

	require.Error(t, r.Run(context.Background()))
}
