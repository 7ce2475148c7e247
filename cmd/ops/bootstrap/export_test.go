package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

func TestExportEnvFile(t *testing.T) {
	mem := newMemSSM()
	mem.params["/dev/receipt-notifier/database/url"] = validDSN
	mem.params["/dev/receipt-notifier/tokenizer/api-key"] = tokKey
	mem.params["/dev/receipt-notifier/ops-api/key-hash"] = "$2a$10$abcdefghijklmnopqrstuv"
	m := newTestManager(mem, nil)

	path := filepath.Join(t.TempDir(), ".env")
	if err := ExportEnvFile(context.Background(), m, path); err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if env["DATABASE_URL"] != validDSN || env["TOKENIZER_API_KEY"] != tokKey {
		t.Errorf("unexpected values: %v", env)
	}
	if env["OPS_API_KEY_HASH"] != "$2a$10$abcdefghijklmnopqrstuv" {
		t.Errorf("hash not round-tripped: %q", env["OPS_API_KEY_HASH"])
	}
	if _, ok := env["IO_API_SUBSCRIPTION_KEY"]; ok {
		t.Error("missing parameter must not be exported")
	}
	if env["APP_ENV"] != "local" {
		t.Errorf("APP_ENV = %q", env["APP_ENV"])
	}
}
