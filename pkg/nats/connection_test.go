package natsclient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_ReusesConnection(t *testing.T) {
	dialer := newFakeDialer()
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	first, err := manager.Connect(context.Background())
	require.NoError(t, err)
	second, err := manager.Connect(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestConnect_ConcurrentCallersShareOneDial(t *testing.T) {
	dialer := newFakeDialer()
	dialer.gate = make(chan struct{})
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	const callers = 8
	conns := make([]Conn, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := manager.Connect(context.Background())
			assert.NoError(t, err)
			conns[i] = conn
		}()
	}

	<-dialer.dialed
	close(dialer.gate)
	wg.Wait()

	assert.Equal(t, 1, dialer.dialCount())
	for _, conn := range conns[1:] {
		assert.Same(t, conns[0], conn)
	}
}

func TestConnect_CloseForcesNewDial(t *testing.T) {
	dialer := newFakeDialer()
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	first, err := manager.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := manager.Connect(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestConnect_WaiterCancelledAttemptContinues(t *testing.T) {
	dialer := newFakeDialer()
	dialer.gate = make(chan struct{})
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := manager.Connect(ctx)
		errs <- err
	}()

	<-dialer.dialed
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	close(dialer.gate)
	conn, err := manager.Connect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestConnect_DialErrorIsNotCached(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = errors.New("connection refused")
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	_, err := manager.Connect(context.Background())
	require.ErrorIs(t, err, dialer.err)

	dialer.mu.Lock()
	dialer.err = nil
	dialer.mu.Unlock()

	_, err = manager.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestRelease_ClosesAndForgets(t *testing.T) {
	dialer := newFakeDialer()
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	conn, err := manager.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, manager.Release(conn))

	assert.Equal(t, 1, dialer.conn(0).closes())

	_, err = manager.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestAcquire_LastReleaseCloses(t *testing.T) {
	dialer := newFakeDialer()
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	first, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	second, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)

	require.NoError(t, manager.Release(first))
	assert.Equal(t, 0, dialer.conn(0).closes())

	third, err := manager.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, third)

	require.NoError(t, manager.Release(second))
	assert.Equal(t, 1, dialer.conn(0).closes())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestAcquire_RedialsAfterTransportClose(t *testing.T) {
	dialer := newFakeDialer()
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	first, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestAcquire_TransportCloseKeepsHolders(t *testing.T) {
	dialer := newFakeDialer()
	manager := newConnectionManager(dialer, DialConfig{ClientID: "gw"})

	first, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	_, err = manager.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, first.Close())
	replacement, err := manager.Connect(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, replacement)

	require.NoError(t, manager.Release(first))
	assert.Equal(t, 1, dialer.conn(0).closes())

	require.NoError(t, manager.Release(first))
	assert.Equal(t, 2, dialer.conn(0).closes())
	assert.Equal(t, 0, dialer.conn(1).closes())
	assert.Empty(t, manager.refs)
}
