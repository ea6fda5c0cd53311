// Command trustctl is the operator and borrower CLI for creditd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	defaultEndpoint = "http://localhost:8080"
	defaultPassEnv  = "TRUSTLEND_KEYSTORE_PASS"
	defaultSecret   = "CREDITD_JWT_SECRET"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *cliEnv, args []string) error
}

var commands = []command{
	{"keygen", "keygen -out <path> [-force]", runKeygen},
	{"address", "address -keystore <path>", runAddress},
	{"token", "token (-keystore <path> | -account <addr>) [-scope credit:write] [-ttl 1h]", runToken},
	{"reputation", "reputation <account>", runReputation},
	{"credit", "credit <account>", runCredit},
	{"mint", "mint", runMint},
	{"circle-create", "circle-create -name <name> [-min-reputation N]", runCircleCreate},
	{"circle", "circle <id>", runCircle},
	{"invite", "invite <circle> <account>", runInvite},
	{"accept", "accept <circle>", runAccept},
	{"vouch", "vouch <circle> <member>", runVouch},
	{"deposit", "deposit <amount>", runDeposit},
	{"withdraw", "withdraw <amount>", runWithdraw},
	{"pool", "pool", runPool},
	{"borrow", "borrow <amount> <days>", runBorrow},
	{"repay", "repay <loan> <amount>", runRepay},
	{"loan", "loan <id>", runLoan},
	{"default", "default <loan>", runDefault},
	{"pause", "pause <module> (on|off)", runPause},
	{"export", "export [-format csv|jsonl|parquet] [-out path]", runExport},
}

// cliEnv carries the global flags and output streams of one invocation.
type cliEnv struct {
	endpoint string
	token    string
	out      io.Writer
	timeout  time.Duration
}

func (e *cliEnv) client() *apiClient {
	return newAPIClient(e.endpoint, e.token, e.timeout)
}

func main() {
	env := &cliEnv{
		endpoint: firstNonEmpty(os.Getenv("TRUSTLEND_API"), defaultEndpoint),
		token:    strings.TrimSpace(os.Getenv("TRUSTLEND_TOKEN")),
		out:      os.Stdout,
		timeout:  15 * time.Second,
	}
	if err := run(context.Background(), env, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(ctx context.Context, env *cliEnv, args []string) error {
	args, err := applyGlobalFlags(env, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		printUsage(env.out)
		return errUsage
	}
	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		err := cmd.run(ctx, env, args[1:])
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: trustctl %s", cmd.usage)
		}
		return err
	}
	printUsage(env.out)
	return fmt.Errorf("unknown command %q", args[0])
}

func applyGlobalFlags(env *cliEnv, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--api" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			i++
			env.set(strings.TrimPrefix(arg, "--"), args[i])
		case strings.HasPrefix(arg, "--api="):
			env.set("api", strings.TrimPrefix(arg, "--api="))
		case strings.HasPrefix(arg, "--token="):
			env.set("token", strings.TrimPrefix(arg, "--token="))
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func (e *cliEnv) set(name, value string) {
	value = strings.TrimSpace(value)
	if name == "api" {
		e.endpoint = value
		return
	}
	e.token = value
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: trustctl [--api URL] [--token JWT] <command> [args]")
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s\n", cmd.usage)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
