package server

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestAuthenticatePrincipal(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: "secret", Issuer: "iss", Audience: "creditd"}, nil)
	token, err := IssueToken([]byte("secret"), alice, "iss", "creditd", []string{ScopeWrite, ScopeAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	principal, err := auth.authenticate(token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Account != alice {
		t.Fatalf("unexpected subject %s", principal.Account)
	}
	if !hasScopes(principal.Scopes, []string{ScopeAdmin}) {
		t.Fatalf("missing admin scope: %v", principal.Scopes)
	}

	wrongAudience, _ := IssueToken([]byte("secret"), alice, "iss", "explorer", nil, time.Minute)
	if _, err := auth.authenticate(wrongAudience); err == nil {
		t.Fatalf("expected audience mismatch")
	}
}

func TestAuthenticateRejectsBadSubjects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: "secret"}, nil)
	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}
	exp := time.Now().Add(time.Minute).Unix()
	if _, err := auth.authenticate(sign(jwt.MapClaims{"exp": exp})); err == nil {
		t.Fatalf("expected missing subject to fail")
	}
	if _, err := auth.authenticate(sign(jwt.MapClaims{"exp": exp, "sub": "bob"})); err == nil {
		t.Fatalf("expected malformed subject to fail")
	}
	if _, err := auth.authenticate(sign(jwt.MapClaims{"sub": alice.String()})); err == nil {
		t.Fatalf("expected tokens without expiry to fail")
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": alice.String(), "exp": exp}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.authenticate(none); err == nil {
		t.Fatalf("expected unsigned token to fail")
	}
}

func TestScopeParsing(t *testing.T) {
	claims := jwt.MapClaims{"scope": "credit:write  credit:admin", "roles": []interface{}{"a", 3, "b"}}
	if got := extractScopes(claims, "scope"); len(got) != 2 {
		t.Fatalf("unexpected scopes %v", got)
	}
	if got := extractScopes(claims, "roles"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected array scopes %v", got)
	}
	if extractBearer("Basic abc") != "" || extractBearer("bearer tok") != "tok" {
		t.Fatalf("bearer parsing mismatch")
	}
}
