package config

import (
	"time"

	"github.com/spf13/viper"
)

type Cas struct {
	// Gateway serving content-addressed files
	GatewayUrl string

	// Timeout for a single file read, a timed out read maps to a not found
	RequestTimeout time.Duration

	// Upper bound on a downloaded core index file
	MaxCoreIndexFileSize int64

	// Upper bound on a downloaded provisional index file
	MaxProvisionalIndexFileSize int64

	// Upper bound on a downloaded chunk file
	MaxChunkFileSize int64

	// Upper bound on a downloaded proof file
	MaxProofFileSize int64

	// How long downloaded files stay in the in-memory cache
	CacheTTL time.Duration
}

func setCasDefaults() {
	viper.SetDefault("Cas.GatewayUrl", "http://localhost:8080/ipfs")
	viper.SetDefault("Cas.RequestTimeout", "10s")
	viper.SetDefault("Cas.MaxCoreIndexFileSize", "1000000")
	viper.SetDefault("Cas.MaxProvisionalIndexFileSize", "1000000")
	viper.SetDefault("Cas.MaxChunkFileSize", "10000000")
	viper.SetDefault("Cas.MaxProofFileSize", "2500000")
	viper.SetDefault("Cas.CacheTTL", "5m")
}
