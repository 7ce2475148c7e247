package config

// The loading sequence is:
//  1. Force UTC.
//  2. Load .env (absent file is fine).
//  3. Outside APP_ENV=local, resolve every *_SSM_PARAM pointer through the
//     SecretProvider and export the plaintext under the target name.
//  4. envconfig populates Config, BuildInfo comes from ldflags.
//  5. Tag validation, then the cross-field checks in checkConsistency.

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig; Type tells which stage failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks SSM pointer variables: IO_API_SUBSCRIPTION_KEY_SSM_PARAM
// holds the parameter path of IO_API_SUBSCRIPTION_KEY.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

// maxSQSDelay is the largest DelaySeconds SQS accepts.
const maxSQSDelay = 15 * time.Minute

// ssmTimeout bounds secret resolution during a cold start.
const ssmTimeout = 30 * time.Second

// loaderDeps abstracts process environment access so tests can run without
// touching os state.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the notifier configuration. provider may be
// nil when APP_ENV=local or when no *_SSM_PARAM variables are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables already present.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := checkConsistency(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checkConsistency enforces rules that span several fields.
func checkConsistency(cfg *Config) error {
	var problems []string

	n := cfg.Notifier
	if n.TokenizerMaxDelay < n.TokenizerBaseDelay {
		problems = append(problems, "TOKENIZER_RETRY_MAX_DELAY must be >= TOKENIZER_RETRY_BASE_DELAY")
	}
	if n.RequeueMaxDelay < n.RequeueBaseDelay {
		problems = append(problems, "REQUEUE_MAX_DELAY must be >= REQUEUE_BASE_DELAY")
	}
	if n.RequeueMaxDelay > maxSQSDelay {
		problems = append(problems, fmt.Sprintf("REQUEUE_MAX_DELAY must not exceed %s", maxSQSDelay))
	}
	if n.WriteBackReserve < 0 {
		problems = append(problems, "NOTIFIER_WRITE_BACK_RESERVE must not be negative")
	}

	if cfg.Environment != localEnv {
		if cfg.AppIO.SubscriptionKey.IsZero() {
			problems = append(problems, "IO_API_SUBSCRIPTION_KEY is required outside local")
		}
		if cfg.Tokenizer.APIKey.IsZero() {
			problems = append(problems, "TOKENIZER_API_KEY is required outside local")
		}
	}

	if len(problems) > 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: strings.Join(problems, "; "),
		}
	}
	return nil
}

// ResolveSecrets runs only the SSM step. The ops API uses it because it reads
// a handful of variables directly instead of loading the full Config.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams exports the decrypted value of every FOO_SSM_PARAM as FOO.
// A FOO already present in the environment wins over SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	targets := make(map[string]string) // ssm path -> env var
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		targets[path] = target
	}
	if len(targets) == 0 {
		return nil
	}

	paths := make([]string, 0, len(targets))
	for p := range targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targetNames(targets, paths), ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, targets[p])
			continue
		}
		if err := deps.setEnv(targets[p], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", targets[p]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

func targetNames(targets map[string]string, paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, targets[p])
	}
	return names
}
