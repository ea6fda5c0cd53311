package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trustlend/core/protocol"
	"trustlend/crypto"
	"trustlend/services/creditd/server"
	"trustlend/storage"
)

const testSecret = "trustctl-test-secret"

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[0] = 0xcc
	a[19] = b
	return a
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := protocol.New(storage.NewMemDB(), protocol.DefaultConfig(addr(1)))
	require.NoError(t, err)
	srv, err := server.New(engine, server.Config{
		Auth:      server.AuthConfig{HMACSecret: testSecret, Issuer: "trustctl-test"},
		RateLimit: server.RateLimit{RequestsPerMinute: 6000, Burst: 100},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func runCLI(t *testing.T, endpoint, token string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	env := &cliEnv{endpoint: endpoint, token: token, out: &out, timeout: 5 * time.Second}
	err := run(context.Background(), env, args)
	return out.String(), err
}

func TestKeygenAndAddress(t *testing.T) {
	t.Setenv(defaultPassEnv, "keystore-pass")
	path := filepath.Join(t.TempDir(), "alice.keystore")

	out, err := runCLI(t, "", "", "keygen", "-out", path)
	require.NoError(t, err)
	generated := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(generated, "tl1"), generated)

	_, err = runCLI(t, "", "", "keygen", "-out", path)
	require.ErrorContains(t, err, "already exists")

	out, err = runCLI(t, "", "", "address", "-keystore", path)
	require.NoError(t, err)
	require.Equal(t, generated, strings.Split(strings.TrimSpace(out), "\n")[0])
}

func TestTokenMintAndQuery(t *testing.T) {
	ts := newTestAPI(t)
	t.Setenv(defaultSecret, testSecret)
	alice := addr(10)

	out, err := runCLI(t, ts.URL, "", "token", "-account", alice.String(), "-issuer", "trustctl-test")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	out, err = runCLI(t, ts.URL, token, "mint")
	require.NoError(t, err)
	require.Contains(t, out, `"tokenId": 1`)

	out, err = runCLI(t, ts.URL, "", "reputation", alice.String())
	require.NoError(t, err)
	require.Contains(t, out, `"score": 100`)
}

func TestAPIErrorsAreDecoded(t *testing.T) {
	ts := newTestAPI(t)
	_, err := runCLI(t, ts.URL, "", "reputation", addr(42).String())
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	require.Equal(t, "reputation_not_found", apiErr.Code)
	require.Equal(t, 404, apiErr.Status)
}

func TestWriteCommandsRequireToken(t *testing.T) {
	_, err := runCLI(t, "http://127.0.0.1:1", "", "mint")
	require.ErrorContains(t, err, "token is required")
}

func TestGlobalFlags(t *testing.T) {
	env := &cliEnv{}
	rest, err := applyGlobalFlags(env, []string{"--api", "http://creditd:8080", "pool", "--token=abc"})
	require.NoError(t, err)
	require.Equal(t, []string{"pool"}, rest)
	require.Equal(t, "http://creditd:8080", env.endpoint)
	require.Equal(t, "abc", env.token)

	_, err = applyGlobalFlags(env, []string{"--api"})
	require.Error(t, err)
}

func TestUsageErrors(t *testing.T) {
	_, err := runCLI(t, "", "", "borrow", "1")
	require.ErrorContains(t, err, "usage: trustctl borrow")
	_, err = runCLI(t, "", "", "nope")
	require.ErrorContains(t, err, "unknown command")
}

func TestParseUnits(t *testing.T) {
	v, err := parseUnits("0.1")
	require.NoError(t, err)
	require.Equal(t, "100000000000000000", v.String())

	v, err = parseUnits("2")
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", v.String())

	for _, bad := range []string{"", "-1", "0", "abc", "0.0000000000000000001"} {
		_, err := parseUnits(bad)
		require.Error(t, err, bad)
	}
}
