package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Observer struct {
	// Tuning preset, overrides the fields below as a bundle.
	// One of: conservative, balanced, aggressive. Empty means no preset.
	Preset string

	// Blocks per historical batch
	BatchSize uint64

	// Sleep between historical batches
	RateLimitDelay time.Duration

	// Attempts per paginator sub-range, the first one included
	MaxRetries int

	// Base delay between retries, grows linearly with the attempt number
	RetryDelay time.Duration

	// Blocks per single chain reader call
	PaginationDefaultBatchSize uint64

	// Advisory upper bound on a single chain reader call
	PaginationMaxBatchSize uint64

	// Upper bound on concurrently processed anchor records
	MaxConcurrentDownloads int

	// Time between live loop iterations
	ObservingInterval time.Duration

	// Per-block cap on records admitted for processing in one live iteration
	MaxRecordsPerBlock int

	// Per-version overrides of MaxRecordsPerBlock, keyed by version name
	MaxRecordsPerBlockByVersion map[string]int

	// Block at which the anchor contract was deployed.
	// 0 means unknown, the observer will probe the chain for it.
	ContractDeploymentBlock uint64

	// Max records fetched in one unresolvable retry sweep
	UnresolvableRetryBatchSize int
}

func setObserverDefaults() {
	viper.SetDefault("Observer.Preset", "")
	viper.SetDefault("Observer.BatchSize", "500")
	viper.SetDefault("Observer.RateLimitDelay", "100ms")
	viper.SetDefault("Observer.MaxRetries", "3")
	viper.SetDefault("Observer.RetryDelay", "1s")
	viper.SetDefault("Observer.PaginationDefaultBatchSize", "1000")
	viper.SetDefault("Observer.PaginationMaxBatchSize", "10000")
	viper.SetDefault("Observer.MaxConcurrentDownloads", "20")
	viper.SetDefault("Observer.ObservingInterval", "60s")
	viper.SetDefault("Observer.MaxRecordsPerBlock", "100")
	viper.SetDefault("Observer.ContractDeploymentBlock", "0")
	viper.SetDefault("Observer.UnresolvableRetryBatchSize", "100")
}

// Bundled tuning values. Conservative goes easy on the RPC endpoint,
// aggressive catches up as fast as the endpoint allows.
func (self *Observer) ApplyPreset(name string) (err error) {
	switch name {
	case "conservative":
		self.BatchSize = 100
		self.RateLimitDelay = 500 * time.Millisecond
		self.MaxRetries = 5
		self.RetryDelay = 2 * time.Second
		self.PaginationDefaultBatchSize = 500
		self.MaxConcurrentDownloads = 5
	case "balanced":
		self.BatchSize = 500
		self.RateLimitDelay = 100 * time.Millisecond
		self.MaxRetries = 3
		self.RetryDelay = time.Second
		self.PaginationDefaultBatchSize = 1000
		self.MaxConcurrentDownloads = 20
	case "aggressive":
		self.BatchSize = 2000
		self.RateLimitDelay = 10 * time.Millisecond
		self.MaxRetries = 3
		self.RetryDelay = 500 * time.Millisecond
		self.PaginationDefaultBatchSize = 5000
		self.MaxConcurrentDownloads = 50
	default:
		err = fmt.Errorf("unknown observer preset: %s", name)
	}
	return
}
