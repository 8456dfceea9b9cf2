package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCancelSignalStaysSet(t *testing.T) {
	var nilSignal *CancelSignal
	require.False(t, nilSignal.Cancelled())

	signal := NewCancelSignal()
	require.False(t, signal.Cancelled())
	signal.Cancel()
	signal.Cancel()
	require.True(t, signal.Cancelled())
}

func TestCancelSignalNotifyOnContext(t *testing.T) {
	signal := NewCancelSignal()
	ctx, cancel := context.WithCancel(context.Background())
	stop := signal.NotifyOnContext(ctx)
	defer stop()

	cancel()
	require.Eventually(t, signal.Cancelled, time.Second, 5*time.Millisecond)
}

func TestCancelSignalNotifyStop(t *testing.T) {
	signal := NewCancelSignal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := signal.NotifyOnContext(ctx)
	stop()
	stop()
	require.False(t, signal.Cancelled())
}

func TestCancelSignalContextEndsOnCancel(t *testing.T) {
	signal := NewCancelSignal()
	ctx, release := signal.Context(context.Background())
	defer release()

	require.NoError(t, ctx.Err())
	signal.Cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context still alive after Cancel")
	}
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestCancelSignalContextNilSignal(t *testing.T) {
	var signal *CancelSignal
	require.Nil(t, signal.Done())

	ctx, release := signal.Context(context.Background())
	require.NoError(t, ctx.Err())
	release()
	require.Error(t, ctx.Err())
}
