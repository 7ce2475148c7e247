package config

import "context"

// SecretProvider resolves secret parameters: SSM Parameter Store in AWS
// environments, the process environment locally.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every resolved key.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
