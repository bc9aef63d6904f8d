package logging

// These constants identify the modules that log through a sub-logger of GlobalLogger
const (
	// REGISTRY_SERVICE is used by the fork registry
	REGISTRY_SERVICE = "fork-registry"
	// GATEWAY_SERVICE is used by the remote data gateway
	GATEWAY_SERVICE = "gateway"
	// CACHE_SERVICE is used by the on-disk remote cache
	CACHE_SERVICE = "cache"
	// CHEATCODE_SERVICE is used by the cheatcode surface
	CHEATCODE_SERVICE = "cheatcodes"
	// CLI_SERVICE is used by the cmd package
	CLI_SERVICE = "cli"
)
