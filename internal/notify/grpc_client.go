package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"

	"go.uber.org/zap"
)

// GRPCDispatcher calls the external notification service. Dispatch is
// best-effort everywhere in this codebase: callers log failures and move on.
type GRPCDispatcher struct {
	cc      *grpc.ClientConn
	timeout time.Duration
}

// NewGRPCDispatcher wraps an established client connection.
func NewGRPCDispatcher(cc *grpc.ClientConn, timeout time.Duration) *GRPCDispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &GRPCDispatcher{cc: cc, timeout: timeout}
}

// Send delivers one message to a rider or driver identity.
func (d *GRPCDispatcher) Send(ctx context.Context, targetID int64, title, body string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := &SendRequest{TargetId: strconv.FormatInt(targetID, 10), Title: title, Body: body}
	resp := new(SendResponse)
	if err := d.cc.Invoke(ctx, sendMethod, req, resp); err != nil {
		return fmt.Errorf("notification rpc: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("notification rejected: %s", resp.Message)
	}
	return nil
}

// LogDispatcher is the fallback when no notification endpoint is
// configured; it records what would have been sent.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs the fallback dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Send logs the message and always succeeds.
func (d *LogDispatcher) Send(_ context.Context, targetID int64, title, body string) error {
	d.logger.Info("notification",
		zap.Int64("target_id", targetID),
		zap.String("title", title),
		zap.String("body", body))
	return nil
}
