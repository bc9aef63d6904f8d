package state

import (
	"context"

	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/chain/state/rpc"
	forktypes "github.com/crytic/multifork/chain/types"
	"github.com/crytic/multifork/logging"
	"github.com/pkg/errors"
)

// Dialer connects a client pool to an endpoint.
type Dialer func(endpoint string, poolSize uint) (*rpc.ClientPool, error)

/*
Gateways owns one Gateway per endpoint URL for the lifetime of a session. Forks on the same endpoint share its gateway,
so remote data fetched at a height by one fork is reused by every other fork anchored at that height.
*/
type Gateways struct {
	ctx    context.Context
	cancel context.CancelFunc

	forkingConfig *config.ForkingConfig
	dialer        Dialer

	gateways map[string]*Gateway
	logger   *logging.Logger
}

// NewGateways creates an empty set of gateways configured by forkingConfig. Endpoints are dialed over the network.
func NewGateways(ctx context.Context, forkingConfig *config.ForkingConfig) *Gateways {
	return NewGatewaysWithDialer(ctx, forkingConfig, rpc.NewClientPool)
}

// NewGatewaysWithDialer creates an empty set of gateways which connect to endpoints through dialer.
func NewGatewaysWithDialer(ctx context.Context, forkingConfig *config.ForkingConfig, dialer Dialer) *Gateways {
	ctx, cancel := context.WithCancel(ctx)
	return &Gateways{
		ctx:           ctx,
		cancel:        cancel,
		forkingConfig: forkingConfig,
		dialer:        dialer,
		gateways:      make(map[string]*Gateway),
		logger:        logging.GlobalLogger.NewSubLogger("module", logging.GATEWAY_SERVICE),
	}
}

// Get returns the gateway of endpoint, dialing it on first use. Dial failures are reported as RemoteRpcError.
func (g *Gateways) Get(endpoint string) (*Gateway, error) {
	if gateway, ok := g.gateways[endpoint]; ok {
		return gateway, nil
	}

	clientPool, err := g.dialer(endpoint, g.forkingConfig.PoolSize)
	if err != nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Wrapf(err, "failed to dial %s", endpoint))
	}

	caching := g.forkingConfig.RpcStorageCaching
	gateway, err := newGateway(
		g.ctx,
		clientPool,
		caching.EnableForEndpoint(endpoint),
		caching.CacheDirectory,
		g.forkingConfig.BlockCacheSize,
		g.logger.NewSubLogger("endpoint", endpoint),
	)
	if err != nil {
		clientPool.Close()
		return nil, err
	}

	g.logger.Debug("Connected to ", endpoint, logging.StructuredLogInfo{"caching": gateway.CachingEnabled()})
	g.gateways[endpoint] = gateway
	return gateway, nil
}

// Close closes every gateway and cancels outstanding requests.
func (g *Gateways) Close() error {
	var firstErr error
	for _, gateway := range g.gateways {
		if err := gateway.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.gateways = make(map[string]*Gateway)
	g.cancel()
	return firstErr
}
