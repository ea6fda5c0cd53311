package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"trustlend/cmd/internal/passphrase"
	"trustlend/crypto"
	"trustlend/native/credit"
	"trustlend/services/creditd/server"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runKeygen(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("keygen")
	out := fs.String("out", "", "keystore output path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil || *out == "" {
		return errUsage
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists (use -force to overwrite)", *out)
	}
	pass, err := passphrase.NewSource(*passEnv, "account").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(env.out, key.PubKey().Address().String())
	return nil
}

func runAddress(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("address")
	path := fs.String("keystore", "", "keystore path")
	if err := fs.Parse(args); err != nil || *path == "" {
		return errUsage
	}
	account, err := crypto.KeystoreAddress(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%s\n%s\n", account.String(), account.Hex())
	return nil
}

// runToken signs an API token locally with the gateway's HMAC secret.
func runToken(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("token")
	path := fs.String("keystore", "", "keystore holding the acting account")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the passphrase")
	accountFlag := fs.String("account", "", "acting account when no keystore is given")
	secretEnv := fs.String("secret-env", defaultSecret, "environment variable holding the HMAC secret")
	scope := fs.String("scope", server.ScopeWrite, "space separated scopes")
	issuer := fs.String("issuer", "", "token issuer")
	audience := fs.String("audience", "", "token audience")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	var account crypto.Address
	var err error
	switch {
	case *path != "":
		account, err = keystoreAddress(*path, *passEnv)
	case *accountFlag != "":
		account, err = crypto.DecodeAddress(*accountFlag)
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	secret := os.Getenv(*secretEnv)
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%s not set", *secretEnv)
	}
	token, err := server.IssueToken([]byte(secret), account, *issuer, *audience, strings.Fields(*scope), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.out, token)
	return nil
}

func keystoreAddress(path, passEnv string) (crypto.Address, error) {
	pass, err := passphrase.NewSource(passEnv, "account").Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("open keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func runReputation(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return getAndPrint(ctx, env, "/v1/reputation/"+url.PathEscape(args[0]))
}

func runCredit(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return getAndPrint(ctx, env, "/v1/accounts/"+url.PathEscape(args[0])+"/credit")
}

func runMint(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	return postAndPrint(ctx, env, "/v1/reputation/mint", struct{}{})
}

func runCircleCreate(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("circle-create")
	name := fs.String("name", "", "circle name")
	minRep := fs.Uint64("min-reputation", 0, "minimum reputation to join")
	if err := fs.Parse(args); err != nil || strings.TrimSpace(*name) == "" {
		return errUsage
	}
	return postAndPrint(ctx, env, "/v1/circles", map[string]interface{}{
		"name":          *name,
		"minReputation": *minRep,
	})
}

func runCircle(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return getAndPrint(ctx, env, fmt.Sprintf("/v1/circles/%d", id))
}

func runInvite(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return postAndPrint(ctx, env, fmt.Sprintf("/v1/circles/%d/invite", id), map[string]string{"invitee": args[1]})
}

func runAccept(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return postAndPrint(ctx, env, fmt.Sprintf("/v1/circles/%d/accept", id), struct{}{})
}

func runVouch(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return postAndPrint(ctx, env, fmt.Sprintf("/v1/circles/%d/vouch", id), map[string]string{"member": args[1]})
}

func runDeposit(ctx context.Context, env *cliEnv, args []string) error {
	return poolTransfer(ctx, env, "/v1/pool/deposit", args)
}

func runWithdraw(ctx context.Context, env *cliEnv, args []string) error {
	return poolTransfer(ctx, env, "/v1/pool/withdraw", args)
}

func poolTransfer(ctx context.Context, env *cliEnv, path string, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	value, err := parseUnits(args[0])
	if err != nil {
		return err
	}
	return postAndPrint(ctx, env, path, map[string]string{"amount": value.String()})
}

func runPool(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	return getAndPrint(ctx, env, "/v1/pool")
}

func runBorrow(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	value, err := parseUnits(args[0])
	if err != nil {
		return err
	}
	days, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", args[1])
	}
	return postAndPrint(ctx, env, "/v1/loans", map[string]interface{}{
		"amount":       value.String(),
		"durationDays": days,
	})
}

func runRepay(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	value, err := parseUnits(args[1])
	if err != nil {
		return err
	}
	return postAndPrint(ctx, env, fmt.Sprintf("/v1/loans/%d/repay", id), map[string]string{"amount": value.String()})
}

func runLoan(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return getAndPrint(ctx, env, fmt.Sprintf("/v1/loans/%d", id))
}

func runDefault(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return postAndPrint(ctx, env, fmt.Sprintf("/v1/loans/%d/default", id), struct{}{})
}

func runPause(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	var paused bool
	switch strings.ToLower(args[1]) {
	case "on", "true":
		paused = true
	case "off", "false":
	default:
		return errUsage
	}
	return postAndPrint(ctx, env, "/v1/admin/pauses", map[string]interface{}{"module": args[0], "paused": paused})
}

func runExport(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("export")
	format := fs.String("format", "csv", "csv, jsonl or parquet")
	outPath := fs.String("out", "", "output file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	w := env.out
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return env.client().download(ctx, "/v1/exports/loans?format="+url.QueryEscape(*format), w)
}

func getAndPrint(ctx context.Context, env *cliEnv, path string) error {
	var out json.RawMessage
	if err := env.client().get(ctx, path, &out); err != nil {
		return err
	}
	return printJSON(env.out, out)
}

func postAndPrint(ctx context.Context, env *cliEnv, path string, body interface{}) error {
	if env.token == "" {
		return errors.New("an API token is required; pass --token or set TRUSTLEND_TOKEN")
	}
	var out json.RawMessage
	if err := env.client().post(ctx, path, body, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(env.out, "ok")
		return nil
	}
	return printJSON(env.out, out)
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseUnits converts a decimal amount of whole units, e.g. "0.25", to base
// units.
func parseUnits(raw string) (*big.Int, error) {
	value, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	value.Mul(value, new(big.Rat).SetInt(credit.Unit))
	if !value.IsInt() {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", raw)
	}
	return new(big.Int).Set(value.Num()), nil
}
