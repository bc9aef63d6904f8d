package config

// DefaultForkingConfig obtains a default configuration for the fork registry.
// Returns a ForkingConfig populated with default values.
func DefaultForkingConfig() (*ForkingConfig, error) {
	// Create a default config and return it.
	config := &ForkingConfig{
		RpcEndpoints: make(map[string]string),
		RpcStorageCaching: StorageCachingConfig{
			Enabled:        true,
			Endpoints:      CachingEndpointsRemote,
			CacheDirectory: "",
		},
		PoolSize:       4,
		BlockCacheSize: 256,
	}

	// Return the generated configuration.
	return config, nil
}
