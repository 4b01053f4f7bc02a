// Command adoptctl drives a remote adoption-api the way the portal does: it
// signs in through the credential store, resolves the role with the same
// state machine and evaluates the route guards.
//
//	adoptctl [-server URL] login -email E -password P
//	adoptctl [-server URL] check -email E -password P -route admin|user
//	adoptctl [-server URL] bootstrap -email E
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/authstate"
	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/guard"
	"github.com/pawhaven/adoption-portal/internal/infrastructure/credentials"
	"github.com/pawhaven/adoption-portal/pkg/logger"
)

const defaultServer = "http://localhost:8080"

var errUsage = errors.New("usage: adoptctl [-server URL] [-v] login|check|bootstrap [flags]")

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("adoptctl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	server := global.String("server", envOr("ADOPTION_API_URL", defaultServer), "adoption-api base URL")
	verbose := global.Bool("v", false, "log state transitions to stderr")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		return errUsage
	}

	log := zerolog.Nop()
	if *verbose {
		log = logger.Init(logger.Options{Level: "debug", Pretty: true, Service: "adoptctl", Output: os.Stderr})
	}

	backend := credentials.NewHTTPBackend(*server, nil)
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "login":
		return login(ctx, backend, rest, out, log)
	case "check":
		return check(ctx, backend, rest, out, log)
	case "bootstrap":
		return bootstrap(ctx, backend, rest, out)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

type credentialFlags struct {
	email    string
	password string
	timeout  time.Duration
}

func (f *credentialFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.email, "email", "", "account email")
	fs.StringVar(&f.password, "password", envOr("ADOPTION_PASSWORD", ""), "account password")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Second, "how long to wait for the role to resolve")
}

// signIn runs the portal login flow against the remote backend and returns
// the resolved state. The session is signed out before returning.
func signIn(ctx context.Context, backend *credentials.HTTPBackend, f credentialFlags, log zerolog.Logger) (domain.AuthState, error) {
	if f.email == "" || f.password == "" {
		return domain.AuthState{}, errors.New("-email and -password are required")
	}

	client := credentials.NewClient(backend, log)
	mgr := authstate.NewManager(client, backend.Roles(client), log)
	if err := mgr.Start(ctx); err != nil {
		return domain.AuthState{}, err
	}
	defer mgr.Close()
	defer func() { _ = mgr.SignOut(context.Background()) }()

	if err := mgr.SignIn(ctx, f.email, f.password); err != nil {
		return domain.AuthState{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return mgr.WaitResolved(waitCtx)
}

func login(ctx context.Context, backend *credentials.HTTPBackend, args []string, out io.Writer, log zerolog.Logger) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var f credentialFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := signIn(ctx, backend, f, log)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"phase":    st.Phase.String(),
		"user":     st.Identity,
		"is_admin": st.IsAdmin,
		"role":     st.Role(),
	})
}

func check(ctx context.Context, backend *credentials.HTTPBackend, args []string, out io.Writer, log zerolog.Logger) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var f credentialFlags
	f.register(fs)
	route := fs.String("route", "admin", "guard to evaluate: admin or user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var g guard.Guard
	switch *route {
	case "admin":
		g = guard.Admin{}
	case "user":
		g = guard.Authenticated{}
	default:
		return fmt.Errorf("unknown route %q", *route)
	}

	st, err := signIn(ctx, backend, f, log)
	if err != nil {
		return err
	}
	d := g.Decide(st)
	return writeJSON(out, map[string]string{
		"route":    *route,
		"decision": d.Action.String(),
		"location": d.Location,
	})
}

func bootstrap(ctx context.Context, backend *credentials.HTTPBackend, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "email to promote")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg, err := backend.BootstrapAdmin(ctx, *email)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]string{"message": msg})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
