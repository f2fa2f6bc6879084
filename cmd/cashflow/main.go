// Command cashflow records expenses and income and prints month-grouped
// ledgers from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/text/language"

	"cashflow/internal/backend"
	"cashflow/internal/cli"
	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

// Exit codes.
const (
	exitOK         = 0
	exitIO         = 1
	exitValidation = 2
	exitNotFound   = 3
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	// stdout is reserved for command output.
	logger := cli.SetupLogger(envOr("LOG_LEVEL", "warn"), os.Stderr, applog.ComponentCLI)

	cfg, err := cli.LoadAndValidateConfig(nil)
	if err != nil {
		logger.Debug("Configuration validation failed",
			applog.FieldOperation, applog.OpValidate,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		fmt.Fprintln(os.Stderr, err)
		return exitValidation
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitValidation
	}

	ctx := context.Background()
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIO
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", applog.FieldError, err)
		}
	}()

	a := &app{
		ledger:       res.Ledger,
		agg:          res.Aggregator,
		loc:          backendCfg.Location,
		amountFormat: amountFormat(backendCfg.Language),
		out:          os.Stdout,
		errOut:       os.Stderr,
	}
	err = a.run(ctx, args)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, core.ErrValidation), errors.Is(err, errUsage):
		return exitValidation
	case errors.Is(err, core.ErrNotFound):
		return exitNotFound
	default:
		return exitIO
	}
}

// amountFormat picks a go-humanize number format for the display language.
func amountFormat(tag language.Tag) string {
	base, _ := tag.Base()
	switch base.String() {
	case "it", "de", "es", "pt", "nl":
		return "#.###,##"
	default:
		return "#,###.##"
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
