package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger := SetupWithWriter(&buf, "creditd", "test")
	logger.Info("loan originated", MaskField("jwt_secret", "hunter2"), slog.String("reason", "ok"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "loan originated", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "creditd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, RedactedValue, line["jwt_secret"])
	require.Equal(t, "ok", line["reason"])
	require.Contains(t, line, "timestamp")
}

func TestOutputUsesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creditd.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_MAX_BACKUPS", "2")

	out := Output()
	rotating, ok := out.(*lumberjack.Logger)
	require.True(t, ok)
	require.Equal(t, path, rotating.Filename)
	require.Equal(t, 2, rotating.MaxBackups)
	require.Equal(t, defaultMaxSizeMB, rotating.MaxSize)
}

func TestMaskURL(t *testing.T) {
	cases := map[string]string{
		"postgres://credit:s3cret@db:5432/journal?sslmode=require": "postgres://db:5432/journal",
		"https://hooks.example.com/credit?token=abc":               "https://hooks.example.com/credit",
		"./data/events.db":                                          "./data/events.db",
		"host=db user=credit password=s3cret dbname=journal":       RedactedValue,
	}
	for raw, want := range cases {
		require.Equal(t, want, MaskURL("dsn", raw).Value.String(), raw)
	}
	require.True(t, IsPlain("Loan_ID"))
	require.Equal(t, "", MaskField("hmac_secret", "").Value.String())
}
