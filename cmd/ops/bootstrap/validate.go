package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
)

// ValidationResult is what the operator sees after entering a value.
type ValidationResult struct {
	Valid   bool
	Message string
}

// DatabaseConnector opens and closes one connection to prove a DSN works.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector dials with pgx.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

const connectTimeout = 10 * time.Second

// Validator holds the checks run on operator input.
type Validator struct {
	DB     DatabaseConnector
	fields *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{DB: PgxConnector{}, fields: validator.New()}
}

// DatabaseURL checks the DSN shape, then connects.
func (v *Validator) DatabaseURL(ctx context.Context, dsn string) ValidationResult {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return ValidationResult{Message: "expected a postgres:// or postgresql:// URL"}
	}
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid connection string: %v", err)}
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := v.DB.Connect(connCtx, dsn); err != nil {
		return ValidationResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("connected to %s%s", u.Host, u.Path)}
}

// APIKey checks that an upstream credential looks like one: printable, no
// spaces, between 16 and 256 characters.
func (v *Validator) APIKey(_ context.Context, key string) ValidationResult {
	if err := v.fields.Var(key, "required,printascii,excludesall= \t,min=16,max=256"); err != nil {
		return ValidationResult{Message: "expected 16 to 256 printable characters without spaces"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%d characters", len(key))}
}
