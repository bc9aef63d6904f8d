package rpc

import (
	"encoding/json"
	"sync"

	"github.com/crytic/medusa-geth/rpc"
	"golang.org/x/net/context"
)

/*
ClientPool owns a set of RPC clients dialed to a single endpoint. Every request is launched on its own goroutine and
handed back as a PendingResult, which callers resolve with GetResultBlocking. This lets the single-threaded state
backend issue several fetches at once while only ever observing blocking calls. Identical requests that are still in
flight are coalesced into one network round trip. Requests are not retried.
*/
type ClientPool struct {
	rpcClients       []*rpc.Client
	currentClientIdx int
	clientLock       sync.Mutex

	inflightRequests map[requestKey]*inflightRequest
	inflightLock     sync.Mutex

	endpoint string
}

// NewClientPool dials poolSize clients to the provided endpoint.
func NewClientPool(endpoint string, poolSize uint) (*ClientPool, error) {
	if poolSize == 0 {
		poolSize = 1
	}

	// dial out
	clients := make([]*rpc.Client, poolSize)
	for i := uint(0); i < poolSize; i++ {
		client, err := rpc.Dial(endpoint)
		if err != nil {
			for _, dialed := range clients[:i] {
				dialed.Close()
			}
			return nil, err
		}
		clients[i] = client
	}

	return NewClientPoolFromClients(endpoint, clients...), nil
}

// NewClientPoolFromClients creates a pool over already-connected clients, such as in-process clients used in tests.
func NewClientPoolFromClients(endpoint string, clients ...*rpc.Client) *ClientPool {
	return &ClientPool{
		rpcClients:       clients,
		clientLock:       sync.Mutex{},
		inflightRequests: make(map[requestKey]*inflightRequest),
		inflightLock:     sync.Mutex{},
		endpoint:         endpoint,
	}
}

// Endpoint returns the URL the pool is connected to.
func (c *ClientPool) Endpoint() string {
	return c.endpoint
}

// ExecuteRequestBlocking executes a request and waits for its result, decoding it into result.
func (c *ClientPool) ExecuteRequestBlocking(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	pending, err := c.ExecuteRequestAsync(ctx, method, args...)
	if err != nil {
		return err
	} else {
		return pending.GetResultBlocking(result)
	}
}

// ExecuteRequestAsync launches a request in the background and returns a handle to its eventual result. If an
// identical request is already in flight, a handle to that request is returned instead.
func (c *ClientPool) ExecuteRequestAsync(ctx context.Context, method string, args ...interface{}) (*PendingResult, error) {
	key, err := makeRequestKey(method, args...)
	if err != nil {
		return nil, err
	}

	// check for in-flight requests
	c.inflightLock.Lock()
	if inflight, exists := c.inflightRequests[key]; exists {
		c.inflightLock.Unlock()
		return newPendingResult(inflight), nil
	} else {
		// no inflight requests
		inflight = &inflightRequest{
			Done:    make(chan struct{}),
			Context: ctx,
		}
		c.inflightRequests[key] = inflight
		c.inflightLock.Unlock()
		client := c.getClient()

		go c.launchRequest(client, key, inflight, method, args...)
		return newPendingResult(inflight), nil
	}
}

// Close closes every client in the pool.
func (c *ClientPool) Close() {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()
	for _, client := range c.rpcClients {
		client.Close()
	}
}

func (c *ClientPool) getClient() *rpc.Client {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	client := c.rpcClients[c.currentClientIdx]
	c.currentClientIdx = (c.currentClientIdx + 1) % len(c.rpcClients)

	return client
}

func (c *ClientPool) launchRequest(
	client *rpc.Client,
	key requestKey,
	request *inflightRequest,
	method string,
	args ...interface{}) {
	defer close(request.Done)

	var result json.RawMessage
	request.Error = client.CallContext(request.Context, &result, method, args...)
	request.Result = result

	// the request is no longer in flight, later requests with the same key go back to the network
	c.inflightLock.Lock()
	delete(c.inflightRequests, key)
	c.inflightLock.Unlock()
}
