package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewService_DefaultInterval(t *testing.T) {
	svc := NewService("check in", 0, nil)
	require.Equal(t, 30*time.Minute, svc.interval)
}

func TestService_BeatsAndLiveness(t *testing.T) {
	var runs atomic.Int32
	svc := NewService("anything pending?", 20*time.Millisecond, func(ctx context.Context, prompt string) error {
		require.Equal(t, "anything pending?", prompt)
		runs.Add(1)
		return nil
	})

	require.False(t, svc.Live())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return runs.Load() >= 2 && svc.Live()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	require.False(t, svc.Live())
	require.GreaterOrEqual(t, svc.Beats(), 2)
	last, err := svc.LastBeat()
	require.NoError(t, err)
	require.False(t, last.IsZero())
}

func TestService_EmptyPromptSkipsRun(t *testing.T) {
	var runs atomic.Int32
	svc := NewService("", 10*time.Millisecond, func(ctx context.Context, prompt string) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	require.Equal(t, int32(0), runs.Load())
	require.Equal(t, 0, svc.Beats())
}
