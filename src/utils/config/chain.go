package config

import (
	"time"

	"github.com/spf13/viper"
)

type Chain struct {
	// JSON-RPC endpoint of the chain node
	RpcUrl string

	// Address of the anchor contract, 0x-prefixed
	AnchorContractAddress string

	// Blocks scanned by a single cursor-driven read
	ReadBatchSize uint64

	// Timeout for a single RPC call
	RequestTimeout time.Duration

	// Calls per second allowed towards the RPC endpoint, 0 disables the limit
	MaxRequestsPerSecond int
}

func setChainDefaults() {
	viper.SetDefault("Chain.RpcUrl", "ws://localhost:8545")
	viper.SetDefault("Chain.AnchorContractAddress", "")
	viper.SetDefault("Chain.ReadBatchSize", "1000")
	viper.SetDefault("Chain.RequestTimeout", "10s")
	viper.SetDefault("Chain.MaxRequestsPerSecond", "0")
}
