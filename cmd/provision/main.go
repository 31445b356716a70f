// Command provision creates a user and its authorization record. It is the
// only path that creates authorization records; the admin view edits them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/pflag"

	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/platform/db"
)

type options struct {
	dsn      string
	email    string
	name     string
	password string
	admin    bool
	grants   []authz.Capability
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		opts  options
		grant []string
		all   bool
	)
	fs.StringVar(&opts.dsn, "dsn", os.Getenv("PG_DSN"), "PostgreSQL DSN (default $PG_DSN)")
	fs.StringVar(&opts.email, "email", "", "login email of the new user")
	fs.StringVar(&opts.name, "name", "", "display name")
	fs.StringVar(&opts.password, "password", os.Getenv("SALESDESK_PASSWORD"), "initial password (default $SALESDESK_PASSWORD)")
	fs.BoolVar(&opts.admin, "admin", false, "make the user an administrator")
	fs.StringSliceVar(&grant, "grant", nil, "capabilities to grant, e.g. view-clients,create-sales")
	fs.BoolVar(&all, "all", false, "grant every capability")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.dsn == "" {
		return options{}, errors.New("--dsn or PG_DSN is required")
	}
	opts.email = strings.ToLower(strings.TrimSpace(opts.email))
	if opts.name == "" {
		opts.name, _, _ = strings.Cut(opts.email, "@")
	}
	user := auth.NewUserInput{Email: opts.email, Name: opts.name, Password: opts.password}
	if err := validator.New().Struct(user); err != nil {
		return options{}, fmt.Errorf("invalid user: %w", err)
	}
	if all {
		opts.grants = authz.All()
		return opts, nil
	}
	for _, raw := range grant {
		c, err := authz.ParseCapability(strings.TrimSpace(raw))
		if err != nil {
			return options{}, err
		}
		opts.grants = append(opts.grants, c)
	}
	return opts, nil
}

func (o options) record(identityID string) authz.Record {
	return authz.Record{
		IdentityID:   identityID,
		IsAdmin:      o.admin,
		Capabilities: authz.CapabilitySetOf(o.grants...),
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "provision:", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "provision:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	pool, err := db.New(ctx, opts.dsn, db.Options{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	hash, err := auth.HashPassword(opts.password)
	if err != nil {
		return err
	}

	var rec authz.Record
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		user, err := auth.NewRepository(tx).CreateUser(ctx, opts.email, opts.name, hash)
		if err != nil {
			return err
		}
		rec, err = authz.NewRepository(pool).WithTx(tx).Create(ctx, opts.record(user.ID))
		return err
	})
	if err != nil {
		return err
	}

	granted := make([]string, 0, len(opts.grants))
	for _, c := range rec.Capabilities.Granted() {
		granted = append(granted, string(c))
	}
	fmt.Fprintf(out, "created %s (%s) admin=%t capabilities=[%s]\n",
		opts.email, rec.IdentityID, rec.IsAdmin, strings.Join(granted, ","))
	return nil
}
