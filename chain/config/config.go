package config

import (
	"encoding/json"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/crytic/multifork/chain/types"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ForkingConfig describes the configuration used by the fork registry to resolve endpoints and to decide how remote
// data is cached.
type ForkingConfig struct {
	// RpcEndpoints maps endpoint aliases to RPC URLs. URLs may reference environment variables through the ${VAR}
	// syntax, which are resolved when the alias is looked up.
	RpcEndpoints map[string]string `json:"rpcEndpoints"`

	// RpcStorageCaching describes which endpoints have their remote data persisted to disk.
	RpcStorageCaching StorageCachingConfig `json:"rpcStorageCaching"`

	// PoolSize describes the amount of RPC clients dialed for each endpoint.
	PoolSize uint `json:"poolSize"`

	// BlockCacheSize describes the amount of blocks and transactions kept in memory for each endpoint.
	BlockCacheSize int `json:"blockCacheSize"`
}

// CachingEndpoints describes which class of endpoints a caching policy applies to.
type CachingEndpoints string

const (
	// CachingEndpointsAll applies the caching policy to every endpoint.
	CachingEndpointsAll CachingEndpoints = "all"
	// CachingEndpointsRemote applies the caching policy only to endpoints that are not hosted on the local machine.
	CachingEndpointsRemote CachingEndpoints = "remote"
)

// StorageCachingConfig describes the on-disk caching policy for remote state.
type StorageCachingConfig struct {
	// Enabled describes whether remote state should be persisted to disk at all.
	Enabled bool `json:"enabled"`

	// Endpoints describes which endpoints are eligible for on-disk caching.
	Endpoints CachingEndpoints `json:"endpoints"`

	// CacheDirectory describes the directory the cache files are written to. An empty string refers to the working
	// directory.
	CacheDirectory string `json:"cacheDirectory"`
}

// RpcEndpoint describes a resolved endpoint alias.
type RpcEndpoint struct {
	// Alias is the name the endpoint was configured under.
	Alias string
	// Url is the resolved RPC URL.
	Url string
}

// envVarPattern matches ${VAR} references inside endpoint URLs.
var envVarPattern = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}`)

// ReadForkingConfigFromFile reads a JSON-serialized ForkingConfig from a provided file path.
// Returns the ForkingConfig if it succeeds, or an error if one occurs.
func ReadForkingConfigFromFile(path string) (*ForkingConfig, error) {
	// Read our configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the configuration on top of the defaults
	forkingConfig, err := DefaultForkingConfig()
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(b, forkingConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return forkingConfig, nil
}

// WriteToFile writes the ForkingConfig to a provided file path in a JSON-serialized format.
// Returns an error if one occurs.
func (c *ForkingConfig) WriteToFile(path string) error {
	// Serialize the configuration
	b, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Clone returns a copy of the ForkingConfig that does not share its endpoint map.
func (c *ForkingConfig) Clone() *ForkingConfig {
	cloned := *c
	cloned.RpcEndpoints = maps.Clone(c.RpcEndpoints)
	if cloned.RpcEndpoints == nil {
		cloned.RpcEndpoints = make(map[string]string)
	}
	return &cloned
}

// Validate validates that the ForkingConfig meets certain requirements.
// Returns an error if one occurs.
func (c *ForkingConfig) Validate() error {
	// Verify the pool size is a positive number
	if c.PoolSize == 0 {
		return errors.Errorf("rpc client pool size must be a positive number")
	}

	// Verify the block cache size is a positive number
	if c.BlockCacheSize <= 0 {
		return errors.Errorf("block cache size must be a positive number")
	}

	// Verify the caching endpoint class is known
	switch c.RpcStorageCaching.Endpoints {
	case CachingEndpointsAll, CachingEndpointsRemote:
	default:
		return errors.Errorf("unknown storage caching endpoint class %q", c.RpcStorageCaching.Endpoints)
	}

	// Verify aliases are non-empty and do not look like URLs, otherwise they would be shadowed during resolution.
	for alias := range c.RpcEndpoints {
		if alias == "" || looksLikeUrl(alias) {
			return errors.Errorf("malformed rpc endpoint alias %q", alias)
		}
	}
	return nil
}

// GetRpcUrl resolves an alias or URL into an RPC URL. Inputs that already look like URLs are returned as-is.
// Returns a ForkError with ErrCodeConfig if the alias is unknown or references an unset environment variable.
func (c *ForkingConfig) GetRpcUrl(aliasOrUrl string) (string, error) {
	if looksLikeUrl(aliasOrUrl) {
		return aliasOrUrl, nil
	}

	rawUrl, ok := c.RpcEndpoints[aliasOrUrl]
	if !ok {
		return "", types.NewForkError(types.ErrCodeConfig, errors.Errorf("rpc endpoint alias %q is not configured", aliasOrUrl))
	}
	return resolveEnvVars(aliasOrUrl, rawUrl)
}

// RpcEndpointList resolves every configured alias, ordered by alias.
// Returns a ForkError with ErrCodeConfig on the first alias that fails to resolve.
func (c *ForkingConfig) RpcEndpointList() ([]RpcEndpoint, error) {
	aliases := make([]string, 0, len(c.RpcEndpoints))
	for alias := range c.RpcEndpoints {
		aliases = append(aliases, alias)
	}
	slices.Sort(aliases)

	endpoints := make([]RpcEndpoint, 0, len(aliases))
	for _, alias := range aliases {
		resolved, err := c.GetRpcUrl(alias)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, RpcEndpoint{Alias: alias, Url: resolved})
	}
	return endpoints, nil
}

// EnableForEndpoint determines whether remote state fetched from the provided URL should be persisted to disk.
func (s *StorageCachingConfig) EnableForEndpoint(endpointUrl string) bool {
	if !s.Enabled {
		return false
	}
	if s.Endpoints == CachingEndpointsRemote {
		return !isLocalEndpoint(endpointUrl)
	}
	return true
}

// resolveEnvVars substitutes ${VAR} references in rawUrl with their environment values.
func resolveEnvVars(alias string, rawUrl string) (string, error) {
	var missing []string
	resolved := envVarPattern.ReplaceAllStringFunc(rawUrl, func(ref string) string {
		name := envVarPattern.FindStringSubmatch(ref)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", types.NewForkError(
			types.ErrCodeConfig,
			errors.Errorf("rpc endpoint %q references unset environment variable(s): %s", alias, strings.Join(missing, ", ")),
		)
	}
	return resolved, nil
}

func looksLikeUrl(s string) bool {
	return strings.Contains(s, "://")
}

// isLocalEndpoint reports whether the endpoint is hosted on the local machine.
func isLocalEndpoint(endpointUrl string) bool {
	parsed, err := url.Parse(endpointUrl)
	if err != nil {
		return false
	}
	if parsed.Scheme == "ipc" || parsed.Scheme == "file" {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return false
}
