// Package main is the bootstrap CLI of the receipt notifier.
//
// It writes the secrets the notifier and the operations API resolve at cold
// start into SSM Parameter Store, under /{env}/receipt-notifier/. Each
// deployed function then points at them with a FOO_SSM_PARAM variable.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=pagopa-prod
//	go run ./cmd/ops/bootstrap --env=dev --endpoint=http://localhost:4566 --export-env
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"dev":  true,
	"uat":  true,
	"prod": true,
}

// Session is the verified AWS session the bootstrap runs in.
type Session struct {
	Environment string
	Profile     string
	Region      string
	Endpoint    string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
	Logger      *slog.Logger
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/uat/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: default credential chain)")
	regionFlag := flag.String("region", "eu-south-1", "AWS region")
	endpointFlag := flag.String("endpoint", "", "AWS endpoint override, e.g. LocalStack")
	exportEnvFlag := flag.Bool("export-env", false, "Write the stored secrets to a .env file for local runs")
	exportEnvPath := flag.String("export-env-path", ".env", "Path of the exported .env file")
	flag.Parse()

	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: --env must be one of dev, uat, prod (got %q)\n\n", *envFlag)
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := initializeSession(ctx, *envFlag, *profileFlag, *regionFlag, *endpointFlag, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if sess.Environment == "prod" && !confirmProduction(sess) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		os.Exit(0)
	}
	printBanner(sess)

	runner := NewRunner(NewSSMManager(sess), os.Stdin, os.Stderr)
	if err := runner.Run(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	if *exportEnvFlag {
		if err := ExportEnvFile(ctx, runner.SSM, *exportEnvPath); err != nil {
			logger.Error("failed to export .env file", "error", err)
			os.Exit(1)
		}
		logger.Info(".env file exported", "path", *exportEnvPath)
	}
}

// initializeSession loads the AWS configuration and confirms the identity
// with STS before anything is written.
func initializeSession(ctx context.Context, env, profile, region, endpoint string, logger *slog.Logger) (*Session, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	stsClient := sts.NewFromConfig(cfg, func(o *sts.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	idCtx, idCancel := context.WithTimeout(ctx, 10*time.Second)
	defer idCancel()

	identity, err := stsClient.GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (profile %q, region %q): %w", profile, region, err)
	}

	sess := &Session{
		Environment: env,
		Profile:     profile,
		Region:      region,
		Endpoint:    endpoint,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}
	logger.Info("AWS identity verified", "account_id", sess.AccountID, "arn", sess.CallerARN, "region", region)
	return sess, nil
}

func confirmProduction(sess *Session) bool {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "  WARNING: you are writing PRODUCTION secrets")
	fmt.Fprintf(os.Stderr, "  Account: %s\n  Region:  %s\n  ARN:     %s\n\n", sess.AccountID, sess.Region, sess.CallerARN)
	fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

func printBanner(sess *Session) {
	fmt.Fprintln(os.Stderr, "------------------------------------------------------------")
	fmt.Fprintln(os.Stderr, "  Receipt Notifier Bootstrap")
	fmt.Fprintln(os.Stderr, "------------------------------------------------------------")
	fmt.Fprintf(os.Stderr, "  Environment:  %s\n", sess.Environment)
	fmt.Fprintf(os.Stderr, "  AWS Account:  %s\n", sess.AccountID)
	fmt.Fprintf(os.Stderr, "  AWS Region:   %s\n", sess.Region)
	if sess.Endpoint != "" {
		fmt.Fprintf(os.Stderr, "  Endpoint:     %s\n", sess.Endpoint)
	}
	fmt.Fprintf(os.Stderr, "  SSM Prefix:   /%s/%s/\n", sess.Environment, ssmService)
	fmt.Fprintln(os.Stderr, "------------------------------------------------------------")
}
