package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ExportEnvFile reads every inventory secret back from SSM and writes them
// to path as a .env file readable only by the owner. Missing parameters are
// left out. The operations API key is exported as its hash, which is what
// the server reads.
func ExportEnvFile(ctx context.Context, m *SSMManager, path string) error {
	env := map[string]string{"APP_ENV": "local"}
	for _, step := range Inventory(NewValidator()) {
		p := m.Path(step.Key)
		exists, err := m.Exists(ctx, p)
		if err != nil {
			return err
		}
		if !exists {
			m.logger.Warn("parameter not set, not exported", "path", p)
			continue
		}
		value, err := m.Get(ctx, p)
		if err != nil {
			return err
		}
		env[step.EnvVar] = value
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restricting permissions of %s: %w", path, err)
	}
	return nil
}
