package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/crytic/medusa-geth/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// poolTestService is served in-process and counts every call it receives.
type poolTestService struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *poolTestService) Echo(value string) string {
	s.calls.Add(1)
	return value
}

func (s *poolTestService) Fail() error {
	s.calls.Add(1)
	return errors.New("execution reverted")
}

func (s *poolTestService) Wait() string {
	s.calls.Add(1)
	<-s.release
	return "released"
}

func newTestClientPool(t *testing.T) (*ClientPool, *poolTestService) {
	service := &poolTestService{release: make(chan struct{})}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("test", service))
	t.Cleanup(server.Stop)

	pool := NewClientPoolFromClients("inproc://test", rpc.DialInProc(server), rpc.DialInProc(server))
	t.Cleanup(pool.Close)
	return pool, service
}

// TestClientPoolBlockingRequest verifies results are decoded into the caller's value.
func TestClientPoolBlockingRequest(t *testing.T) {
	pool, service := newTestClientPool(t)

	var result string
	err := pool.ExecuteRequestBlocking(context.Background(), &result, "test_echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	// A completed request is no longer in flight, so the same request goes back to the network.
	err = pool.ExecuteRequestBlocking(context.Background(), &result, "test_echo", "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 2, service.calls.Load())
}

// TestClientPoolNoRetry verifies failures are surfaced immediately without retrying.
func TestClientPoolNoRetry(t *testing.T) {
	pool, service := newTestClientPool(t)

	var result string
	err := pool.ExecuteRequestBlocking(context.Background(), &result, "test_fail")
	assert.Error(t, err)
	assert.EqualValues(t, 1, service.calls.Load())
}

// TestClientPoolInflightDeduplication verifies identical in-flight requests share a single round trip.
func TestClientPoolInflightDeduplication(t *testing.T) {
	pool, service := newTestClientPool(t)

	first, err := pool.ExecuteRequestAsync(context.Background(), "test_wait")
	require.NoError(t, err)
	second, err := pool.ExecuteRequestAsync(context.Background(), "test_wait")
	require.NoError(t, err)
	assert.Same(t, first.request, second.request)

	close(service.release)
	var a, b string
	require.NoError(t, first.GetResultBlocking(&a))
	require.NoError(t, second.GetResultBlocking(&b))
	assert.Equal(t, "released", a)
	assert.Equal(t, a, b)
	assert.EqualValues(t, 1, service.calls.Load())
}

// TestClientPoolCancelledContext verifies a cancelled session context unblocks waiting callers.
func TestClientPoolCancelledContext(t *testing.T) {
	pool, service := newTestClientPool(t)
	defer close(service.release)

	ctx, cancel := context.WithCancel(context.Background())
	pending, err := pool.ExecuteRequestAsync(ctx, "test_wait")
	require.NoError(t, err)
	cancel()

	var result string
	assert.ErrorIs(t, pending.GetResultBlocking(&result), context.Canceled)
}
