// Package main provides the ledger operations CLI.
// Usage: ledgerctl migrate
//        ledgerctl rebuild-chain --user u1 --company ACME --designation <uuid>
//        ledgerctl repair-mirror --user u1 --company ACME
//        ledgerctl token --user u1 --company ACME
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"stockledger/internal/app"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "migrate":
		err = migrate(args)
	case "rebuild-chain":
		err = rebuildChain(ctx, args)
	case "repair-mirror":
		err = repairMirror(ctx, args)
	case "token":
		err = issueToken(args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Stock ledger operations CLI

Usage:
  ledgerctl <command> [options]

Commands:
  migrate         Apply db/migrations to the primary (and mirror) database with goose
  rebuild-chain   Recompute the stock chain of one designation
  repair-mirror   Diff and converge the mirror for one scope
  token           Issue a bearer token for a scope
  help            Show this help

Environment Variables:
  DATABASE_URL          Primary ledger database (required)
  MIRROR_ENABLED        Enable the secondary store
  MIRROR_DATABASE_URL   Secondary store connection string
  JWT_SECRET            Secret used to sign bearer tokens

Examples:
  ledgerctl migrate
  ledgerctl rebuild-chain --user u1 --company ACME --designation <uuid>
  ledgerctl repair-mirror --user u1
  ledgerctl token --user u1 --company ACME`)
}

func scopeFlags(fs *flag.FlagSet) *tenant.Scope {
	s := &tenant.Scope{}
	fs.StringVar(&s.UserID, "user", "", "owning user id (required)")
	fs.StringVar(&s.CompanyCode, "company", "", "company code")
	return s
}

func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, log)
}

func migrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := fs.String("dir", "db/migrations", "migrations directory")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	targets := []struct{ name, dsn string }{{"primary", cfg.DB.URL}}
	if cfg.Mirror.Enabled {
		targets = append(targets, struct{ name, dsn string }{"mirror", cfg.Mirror.URL})
	}

	for _, t := range targets {
		fmt.Printf("Migrating %s...\n", t.name)
		cmd := exec.Command("goose", "-dir", *dir, "postgres", t.dsn, "up")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("migrate %s: %w", t.name, err)
		}
		fmt.Println("  Done")
	}
	return nil
}

func rebuildChain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rebuild-chain", flag.ExitOnError)
	scope := scopeFlags(fs)
	designation := fs.String("designation", "", "designation id (required)")
	wait := fs.Bool("sync", true, "wait for the mirror before exiting")
	_ = fs.Parse(args)

	if !scope.Valid() || *designation == "" {
		return fmt.Errorf("--user and --designation are required")
	}
	designationID, err := id.Parse(*designation)
	if err != nil {
		return fmt.Errorf("invalid --designation: %w", err)
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []ledger.Option
	if *wait {
		opts = append(opts, ledger.WaitReplication())
	}
	report, err := a.Ledger.RebuildChain(ctx, *scope, designationID, opts...)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func repairMirror(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("repair-mirror", flag.ExitOnError)
	scope := scopeFlags(fs)
	_ = fs.Parse(args)

	if !scope.Valid() {
		return fmt.Errorf("--user is required")
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Mirror == nil {
		return fmt.Errorf("replication is disabled (set MIRROR_ENABLED=true)")
	}
	report, err := a.Mirror.Repair(ctx, *scope)
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d rows could not be repaired", n)
	}
	return nil
}

func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	scope := scopeFlags(fs)
	_ = fs.Parse(args)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	token, expires, err := auth.NewJWTService(auth.DefaultJWTConfig(secret)).GenerateAccessToken(*scope)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"token": token, "expiresAt": expires})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
