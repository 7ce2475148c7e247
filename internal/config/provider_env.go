package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves "parameters" from the process environment. It lets
// local runs and integration tests exercise the SSM pointer flow without AWS.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch treats each key as an environment variable name. Unset
// keys are omitted from the result.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
