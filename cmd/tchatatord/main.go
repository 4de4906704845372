// Command tchatatord is the process entry point: CLI argument parsing,
// environment loading, and process wiring, handing off to the listener or
// to one interactive request.
package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/5cover/tchatator413/internal/action"
	"github.com/5cover/tchatator413/internal/auth"
	"github.com/5cover/tchatator413/internal/config"
	"github.com/5cover/tchatator413/internal/eval"
	"github.com/5cover/tchatator413/internal/metrics"
	"github.com/5cover/tchatator413/internal/response"
	"github.com/5cover/tchatator413/internal/scope"
	"github.com/5cover/tchatator413/internal/server"
	"github.com/5cover/tchatator413/internal/store/postgres"
	"github.com/5cover/tchatator413/internal/turnstile"
)

// Exit codes, following BSD sysexits.
const (
	exitOK         = 0
	exitUsage      = 64
	exitDataErr    = 65
	exitNoDatabase = 66
)

// version is overridden at build time with -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("tchatatord", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		showHelp    = fs.BoolP("help", "h", false, "show this help message")
		showVersion = fs.Bool("version", false, "print the version and exit")
		dumpConfig  = fs.Bool("dump-config", false, "print the effective configuration and exit")
		quiet       = fs.CountP("quiet", "q", "decrement verbosity")
		verbose     = fs.CountP("verbose", "v", "increment verbosity")
		interactive = fs.BoolP("interactive", "i", false, "read one request from stdin or argv, print one response, exit")
		configPath  = fs.StringP("config", "c", "", "path to the JSON configuration file")
	)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if *showHelp {
		fs.PrintDefaults()
		return exitOK
	}
	if *showVersion {
		fmt.Fprintln(stdout, "tchatatord", version)
		return exitOK
	}

	cfg := config.Defaults()
	cfg.Verbosity = *verbose - *quiet

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return exitDataErr
		}
	}

	if *dumpConfig {
		if err := cfg.Dump(stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return exitDataErr
		}
		return exitOK
	}

	log, err := config.NewLogger(cfg.LogFile, cfg.Verbosity)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitDataErr
	}

	var missing []string
	env := config.RequireEnv(func(name string) { missing = append(missing, name) })
	if len(missing) > 0 {
		for _, name := range missing {
			log.Error("missing required environment variable %s", name)
		}
		return exitUsage
	}
	cfg.Env = env

	root, err := rootCredential(env)
	if err != nil {
		log.Error("ROOT_API_KEY: %v", err)
		return exitDataErr
	}

	db, err := postgres.Open(env, log)
	if err != nil {
		log.Error("database: %v", err)
		return exitNoDatabase
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Error("schema: %v", err)
		return exitNoDatabase
	}

	ev := eval.New(db, cfg, root, log)

	if *interactive {
		return runInteractive(fs.Args(), stdin, stdout, ev, log)
	}

	ts := turnstile.New(turnstile.Limits{PerMinute: int32(cfg.RateLimitM), PerHour: int32(cfg.RateLimitH)}, metrics.Registry)
	ln := server.New(cfg, log, ts, ev)
	if err := ln.ListenAndServeWithSignals(); err != nil {
		log.Error("listen: %v", err)
		return exitNoDatabase
	}
	return exitOK
}

// rootCredential builds the configuration-held root credential from the
// required ROOT_API_KEY/ROOT_PASSWORD envvars. Id 0 is reserved for the
// root administrator, whose credential never lives in the store. The
// clear password is hashed here, at startup, and discarded.
func rootCredential(env config.Env) (auth.RootCredential, error) {
	id, err := uuid.Parse(env.RootAPIKey)
	if err != nil {
		return auth.RootCredential{}, fmt.Errorf("invalid UUID: %w", err)
	}
	key, err := id.MarshalBinary()
	if err != nil {
		return auth.RootCredential{}, err
	}
	var root auth.RootCredential
	copy(root.APIKey[:], key)
	if env.RootPass != "" {
		hash, err := auth.HashPassword(env.RootPass)
		if err != nil {
			return auth.RootCredential{}, fmt.Errorf("hashing root password: %w", err)
		}
		root.PasswordHash = hash
	}
	return root, nil
}

// runInteractive implements -i/--interactive: read one request from stdin,
// or from the first positional argument if one was given, print one
// response, exit. No turnstile check applies outside the TCP listener.
func runInteractive(positional []string, stdin *os.File, stdout *os.File, ev *eval.Evaluator, log *config.Logger) int {
	sc := scope.New()
	defer sc.Close()

	var raw []byte
	if len(positional) > 0 {
		raw = []byte(positional[0])
	} else {
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(bufio.NewReader(stdin)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitDataErr
		}
		raw = buf.Bytes()
	}

	sc.Add(&raw, func() { raw = nil })

	ctx := context.Background()
	fragments, parseErr := action.ParseRequest(raw)
	sc.Add(&fragments, func() { fragments = nil })
	var responses []response.Response
	if parseErr != nil {
		responses = []response.Response{response.ErrorResponse(action.VerbError, parseErr)}
	} else {
		responses = make([]response.Response, len(fragments))
		for i, fragment := range fragments {
			a := action.ParseAction(ctx, ev.DB(), fragment, log.Error)
			responses[i] = ev.Evaluate(ctx, a)
		}
	}
	sc.Add(&responses, func() { responses = nil })

	body, err := response.EncodeRequest(responses)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitDataErr
	}
	sc.Add(&body, func() { body = nil })
	fmt.Fprintln(stdout, string(body))
	return exitOK
}
