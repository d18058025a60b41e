package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yanet-platform/flowlb/common/go/xcmd"
)

func TestWaitInterruptedLogsSignal(t *testing.T) {
	// Keep SIGUSR1 from terminating the test binary before
	// waitInterrupted subscribes.
	guard := make(chan os.Signal, 16)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	done := make(chan error, 1)
	go func() {
		done <- waitInterrupted(context.Background(), log, syscall.SIGUSR1)
	}()

	require.Eventually(t, func() bool {
		require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
		select {
		case err := <-done:
			require.True(t, xcmd.IsInterrupted(err))
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, 1, logs.FilterMessageSnippet("caught signal").Len())
}

func TestWaitInterruptedSilentOnCancel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitInterrupted(ctx, log)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, logs.Len())
}
