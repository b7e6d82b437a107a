// Command sauat-admin runs one-off maintenance tasks against the sauat database.
//
//	sauat-admin seed [-email addr] [-first name] [-last name]
//
// The admin password is read from SAUAT_ADMIN_PASSWORD, or prompted for
// without echo when unset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sauat/cmd/identity"
	"sauat/cmd/internal/app"
	"sauat/cmd/security/password"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errUsage = errors.New("usage: sauat-admin seed [-email addr] [-first name] [-last name]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "sauat-admin:", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "seed":
		return runSeed(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
}

type seedOptions struct {
	email string
	first string
	last  string
}

func parseSeedFlags(args []string, defEmail string) (seedOptions, error) {
	var opts seedOptions

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.email, "email", defEmail, "admin email (default $SAUAT_SEED_ADMIN_EMAIL)")
	fs.StringVar(&opts.first, "first", "", "admin first name")
	fs.StringVar(&opts.last, "last", "", "admin last name")
	if err := fs.Parse(args); err != nil {
		return seedOptions{}, fmt.Errorf("%v\n%w", err, errUsage)
	}
	if strings.TrimSpace(opts.email) == "" {
		return seedOptions{}, errors.New("admin email is required (-email or SAUAT_SEED_ADMIN_EMAIL)")
	}
	return opts, nil
}

func runSeed(ctx context.Context, args []string, out io.Writer) error {
	if err := app.LoadDotEnv(); err != nil {
		return err
	}
	cfg := app.LoadConfig()

	opts, err := parseSeedFlags(args, cfg.SeedAdminEmail)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("SAUAT_DATABASE_URL is required")
	}

	pw := cfg.AdminPassword
	if pw == "" {
		if pw, err = promptPassword(out, int(os.Stdin.Fd())); err != nil {
			return err
		}
	}

	hasher, err := password.FromEnv()
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	pool, err := app.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		return err
	}

	u, created, err := app.SeedAdmin(ctx, log, users, hasher, app.AdminSeed{
		Email:     opts.email,
		Password:  pw,
		FirstName: opts.first,
		LastName:  opts.last,
	})
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(out, "created admin %s (%s)\n", u.Email, u.ID)
	} else {
		fmt.Fprintf(out, "admin %s already exists (%s)\n", u.Email, u.ID)
	}
	return nil
}

// promptPassword reads the password twice from the terminal without echo.
func promptPassword(w io.Writer, fd int) (string, error) {
	fmt.Fprint(w, "Admin password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password is required")
	}
	return string(first), nil
}
