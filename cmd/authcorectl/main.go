// Command authcorectl administers a local authcore database:
// bootstrap the first admin, manage accounts, and tail the audit
// journal.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	authcore "github.com/auralis-app/authcore"
	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "authcorectl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("authcorectl", flag.ContinueOnError)
	var (
		dbPath     = fs.String("db", "authcore.db", "credential database path")
		journalDir = fs.String("journal", "", "audit journal directory (overrides AUTHCORE_JOURNAL_DIR)")
		verbose    = fs.Bool("v", false, "verbose diagnostics")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: authcorectl [flags] <bootstrap|create-user|list-users|audit-tail> [args]")
	}

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	// AUTHCORE_* environment variables over the defaults, flags over
	// both.
	cfg, err := authcore.LoadConfig(context.Background())
	if err != nil {
		return err
	}
	if *journalDir != "" {
		cfg.Journal.Dir = *journalDir
	}
	if len(cfg.Session.SigningKey) == 0 {
		cfg.Session.SigningKey = ephemeralKey(32)
	}
	if len(cfg.TOTP.SecretKey) == 0 {
		cfg.TOTP.SecretKey = ephemeralKey(32)
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(st).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "bootstrap":
		return bootstrap(ctx, engine, rest)
	case "create-user":
		return createUser(ctx, engine, rest)
	case "list-users":
		return listUsers(ctx, engine)
	case "audit-tail":
		return auditTail(ctx, engine, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func bootstrap(ctx context.Context, engine *authcore.Engine, args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	username := fs.String("username", "admin", "initial admin username")
	out := fs.String("out", "admin-credentials.txt", "file receiving the generated password (0600)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	created, err := engine.Bootstrap(ctx, *username, *out)
	if err != nil {
		return err
	}
	if !created {
		fmt.Println("accounts already exist, nothing to do")
		return nil
	}
	fmt.Printf("admin %q created, password written to %s\n", *username, *out)
	return nil
}

func createUser(ctx context.Context, engine *authcore.Engine, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "account name")
	pass := fs.String("password", "", "initial password")
	role := fs.String("role", "user", "role: guest, user, power_user or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *pass == "" {
		return fmt.Errorf("create-user: -username and -password are required")
	}
	r, ok := permission.ParseRole(*role)
	if !ok {
		return fmt.Errorf("create-user: unknown role %q", *role)
	}

	user, err := engine.CreateUser(ctx, *username, *pass, r)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s) as %s\n", user.Username, user.ID, user.Role)
	return nil
}

func listUsers(ctx context.Context, engine *authcore.Engine) error {
	users, err := engine.ListUsers(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tACTIVE\t2FA\tLAST LOGIN")
	for _, u := range users {
		last := "never"
		if !u.LastLoginAt.IsZero() {
			last = u.LastLoginAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", u.Username, u.Role, u.Active, u.TOTPEnabled, last)
	}
	return w.Flush()
}

func auditTail(ctx context.Context, engine *authcore.Engine, args []string) error {
	fs := flag.NewFlagSet("audit-tail", flag.ContinueOnError)
	limit := fs.Int("n", 20, "number of events")
	user := fs.String("user", "", "filter by username")
	eventType := fs.String("type", "", "filter by event type")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := journal.Filter{Username: *user}
	if *eventType != "" {
		f.Types = []string{*eventType}
	}
	events, err := engine.QueryAudit(ctx, f, *limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		status := "ok"
		if !e.Success {
			status = "fail"
		}
		fmt.Printf("%s  %-24s %-8s %-5s %s %s\n",
			e.Timestamp.Format(time.RFC3339), e.EventType, e.Severity, status, e.Username, e.Action)
	}
	return nil
}

// ephemeralKey generates throwaway key material. Sessions and TOTP
// secrets minted by this CLI do not survive the process, which is fine
// for administrative commands against the database.
func ephemeralKey(n int) []byte {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return key
}
