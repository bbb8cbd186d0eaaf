package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/ridematch/internal/notify"
)

func TestLogDispatcherAlwaysSucceeds(t *testing.T) {
	d := notify.NewLogDispatcher(nil)

	require.NoError(t, d.Send(context.Background(), 100, "New trip offer", "Do you want to take trip 1?"))
}
