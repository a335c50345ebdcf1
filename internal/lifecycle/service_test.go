package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/workflow-engine/internal/logger"
)

func testFactory() logger.LogFactory {
	return logger.NewFactory(logger.ParseLevel("error"))
}

func TestServiceStopWaitsForGoroutineExit(t *testing.T) {
	started := make(chan struct{})
	exited := make(chan struct{})

	s := NewService(context.Background(), testFactory()("test"), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(exited)
	})
	s.Start()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("service never started")
	}

	s.Stop()
	select {
	case <-exited:
	default:
		t.Fatal("Stop returned before the goroutine exited")
	}
}

func TestServiceStopIsIdempotent(t *testing.T) {
	s := NewService(context.Background(), testFactory()("test"), func(ctx context.Context) {
		<-ctx.Done()
	})
	s.Start()
	s.Stop()
	s.Stop() // must not block or panic
}

func TestServiceDoubleStartIsIgnored(t *testing.T) {
	calls := 0
	s := NewService(context.Background(), testFactory()("test"), func(ctx context.Context) {
		calls++
		<-ctx.Done()
	})
	s.Start()
	s.Start()
	s.Stop()
	require.Equal(t, 1, calls)
}
