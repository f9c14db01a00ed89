package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/homobie/portal-go/internal/config"
	"github.com/homobie/portal-go/portal"
	"github.com/homobie/portal-go/query"
	"github.com/homobie/portal-go/session"
	"github.com/homobie/portal-go/store"
	"github.com/homobie/portal-go/transport"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "portalctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg := config.FromEnv()

	log := newLogger(cfg.LogLevel)

	st, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return errors.Wrap(err, "open credential store")
	}

	manager, err := session.NewManager(cfg.APIBaseURL, st,
		session.WithLogger(log),
		session.WithOnSessionExpired(func() {
			fmt.Fprintln(os.Stderr, "session expired, run `portalctl login` again")
		}),
	)
	if err != nil {
		return errors.Wrap(err, "build session manager")
	}
	defer manager.Close()

	api := transport.New(cfg.APIBaseURL,
		transport.WithTokenSource(manager),
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithLogger(log),
	)
	queries := query.New(api, query.Config{Unauthorized: query.UnauthorizedLogout}, query.WithLogger(log))
	client := portal.New(api, queries)

	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	switch args[0] {
	case "login":
		return login(ctx, manager, args[1:])
	case "logout":
		return manager.Logout(ctx)
	case "whoami":
		return whoami(manager)
	case "projects":
		return printJSONList(client.Projects().List(ctx))
	case "leads":
		return leads(ctx, client, args[1:])
	case "properties":
		return printJSONList(client.Properties().List(ctx))
	case "loans":
		return loans(ctx, client, args[1:])
	default:
		usage()
		return errors.Errorf("unknown command %q", args[0])
	}
}

func login(ctx context.Context, manager *session.Manager, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("login requires -username and -password")
	}

	sess, err := manager.Login(ctx, session.LoginCredentials{Username: *username, Password: *password})
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s %s (%s)\n", sess.User.FirstName, sess.User.LastName, sess.User.Role)
	return nil
}

func whoami(manager *session.Manager) error {
	if !manager.IsAuthenticated() {
		fmt.Println("not logged in")
		return nil
	}
	return printJSON(manager.User())
}

func leads(ctx context.Context, client *portal.Client, args []string) error {
	fs := flag.NewFlagSet("leads", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status")
	assignee := fs.String("assignee", "", "filter by assignee")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJSONList(client.Leads().List(ctx, portal.LeadFilter{Status: *status, AssignedTo: *assignee}))
}

func loans(ctx context.Context, client *portal.Client, args []string) error {
	fs := flag.NewFlagSet("loans", flag.ContinueOnError)
	leadID := fs.String("lead", "", "lead ID to fetch recommendations for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *leadID == "" {
		return errors.New("loans requires -lead")
	}
	return printJSONList(client.Loans().Recommendations(ctx, *leadID))
}

func printJSONList[T any](items []T, err error) error {
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := printJSON(item); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(parsed).With().Timestamp().Logger()
}

func usage() {
	figure.NewFigure("Homobie", "cybermedium", true).Print()
	fmt.Println()
	fmt.Println("usage: portalctl <login|logout|whoami|projects|leads|properties|loans> [flags]")
}
