package common

import (
	"context"

	"github.com/anchornet/observer/src/utils/config"
)

type contextKey int

const (
	configKey contextKey = iota
)

// Attaches the global configuration to the context
func SetConfig(ctx context.Context, c *config.Config) context.Context {
	return context.WithValue(ctx, configKey, c)
}

func GetConfig(ctx context.Context) *config.Config {
	c, ok := ctx.Value(configKey).(*config.Config)
	if !ok {
		return nil
	}
	return c
}
