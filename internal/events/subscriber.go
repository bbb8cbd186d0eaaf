package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/ridematch/internal/trip/domain"
)

// Handler processes one trip-created signal. Handlers own their error
// handling; the subscriber never fails the subscription on a handler error.
type Handler func(ctx context.Context, event domain.MatchEvent)

// Subscriber binds a NATS subject to a handler behind a bounded worker
// pool. The pool size caps how many matching passes run at once; the
// buffered queue absorbs bursts and applies backpressure to the NATS
// callback when full.
type Subscriber struct {
	conn    *nats.Conn
	subject string
	handler Handler
	logger  *zap.Logger
	workers int

	sub   *nats.Subscription
	queue chan domain.MatchEvent
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewSubscriber constructs a subscriber; Start registers the subscription.
func NewSubscriber(conn *nats.Conn, subject string, workers int, handler Handler, logger *zap.Logger) *Subscriber {
	if subject == "" {
		subject = DefaultSubject
	}
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{conn: conn, subject: subject, handler: handler, logger: logger, workers: workers}
}

// Start subscribes and launches the worker pool. Workers exit when ctx is
// cancelled or the queue is closed by Close.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("nats connection is required")
	}
	s.queue = make(chan domain.MatchEvent, s.workers*4)
	s.done = make(chan struct{})

	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.dispatch(ctx, msg)
	})
	if err != nil {
		return err
	}
	s.sub = sub

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.done:
					return
				case event := <-s.queue:
					s.handler(ctx, event)
				}
			}
		}()
	}

	s.logger.Info("subscribed", zap.String("subject", s.subject), zap.Int("workers", s.workers))
	return nil
}

// dispatch decodes and enqueues one message. Malformed payloads are logged
// and dropped; redelivery of a well-formed duplicate is harmless because
// matching is idempotent from the rider's point of view.
func (s *Subscriber) dispatch(ctx context.Context, msg *nats.Msg) {
	var event domain.MatchEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	select {
	case s.queue <- event:
	case <-ctx.Done():
	case <-s.done:
	}
}

// Close unsubscribes and waits for in-flight handlers to finish. The queue is
// never closed: an unsubscribe does not wait for an in-flight NATS callback,
// so a dispatch blocked on a full queue may still be live here. Shutdown is
// signalled through done instead; events still queued at that point are
// dropped, which at-least-once delivery already forces consumers to tolerate.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.done != nil {
		close(s.done)
	}
	s.wg.Wait()
}
