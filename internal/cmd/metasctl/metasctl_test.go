package metasctl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/metas/internal/platform/logging"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/identity"
)

const testKey = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		StoreDriver: "sqlite",
		DBPath:      filepath.Join(t.TempDir(), "metas.db"),
		SigningKey:  testKey,
		Issuer:      "metas",
		Audience:    "metas-api",
		Locale:      "en-US",
		Log:         logging.Config{Level: "error", Format: "json"},
	}
}

func run(t *testing.T, cfg Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWindowsCommand(t *testing.T) {
	out, err := run(t, testConfig(t), "windows",
		"--start", "2025-01-01", "--end", "2025-12-31", "--cadence", "quarterly", "--label-locale", "pt-BR")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "LABEL")
	assert.Contains(t, lines[1], "jan–mar/2025")
	assert.Contains(t, lines[4], "2025-10-01")
	assert.Contains(t, lines[4], "2025-12-31")
}

func TestWindowsCommandRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "windows", "--start", "2025-01-01", "--end", "2025-12-31")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cadence")

	_, err = run(t, cfg, "windows", "--start", "2025-13-01", "--end", "2025-12-31", "--cadence", "monthly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")

	_, err = run(t, cfg, "windows", "--start", "2025-01-01", "--end", "2025-12-31", "--cadence", "weekly")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	cfg := testConfig(t)
	out, err := run(t, cfg, "token", "--sub", "launcher-1", "--name", "Ana", "--role", "launcher")
	require.NoError(t, err)

	verifier, err := identity.NewVerifier(identity.Config{
		SigningKey: []byte(testKey),
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
	})
	require.NoError(t, err)
	actor, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, access.Actor{UserID: "launcher-1", Name: "Ana", Role: access.RoleLauncher}, actor)
}

func TestTokenCommandRejectsShortKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.SigningKey = "short"
	_, err := run(t, cfg, "token", "--sub", "u1")
	require.Error(t, err)

	_, err = run(t, testConfig(t), "token", "--sub", "u1", "--role", "owner")
	require.Error(t, err)
}

func TestSeedThenDashboard(t *testing.T) {
	cfg := testConfig(t)
	fixture := filepath.Join("..", "..", "services", "metas", "seed", "testdata", "seed.yaml")

	out, err := run(t, cfg, "seed", "--file", fixture)
	require.NoError(t, err)
	assert.Equal(t, "created 11, skipped 0\n", out)

	out, err = run(t, cfg, "seed", "--file", fixture)
	require.NoError(t, err)
	assert.Equal(t, "created 0, skipped 11\n", out)

	out, err = run(t, cfg, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "On-time delivery")
	assert.Contains(t, out, "Invoices issued")
	assert.Contains(t, out, "goals 3, cells 12 (launched 0, pending 12)")

	out, err = run(t, cfg, "dashboard", "--state", "launched")
	require.NoError(t, err)
	assert.Contains(t, out, "launched 0")

	_, err = run(t, cfg, "dashboard", "--state", "done")
	require.Error(t, err)
}

func TestSeedMissingFile(t *testing.T) {
	_, err := run(t, testConfig(t), "seed", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open seed file")
}

func TestUnknownStoreDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "postgres"
	_, err := run(t, cfg, "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("METAS_STORE_DRIVER", "badger")
	t.Setenv("METAS_LOCALE", "pt-BR")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.StoreDriver)
	assert.Equal(t, "pt-BR", cfg.Locale)
	assert.Equal(t, "data/metas.db", cfg.DBPath)
}
