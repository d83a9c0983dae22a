// Package testutil wires the pieces folio's HTTP tests share: an in-memory
// audit database, a dev backend with known accounts, and credential minting.
package testutil

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/db"
	"github.com/jrschumacher/folio/internal/devbackend"
	"github.com/spf13/viper"
)

// Secret signs every credential minted in tests.
const Secret = "test-secret"

// Known dev backend accounts.
var (
	Admin  = devbackend.User{Email: "ada@example.com", Password: "ada-pw", Subject: "user-ada", Role: "admin"}
	Reader = devbackend.User{Email: "bob@example.com", Password: "bob-pw", Subject: "user-bob", Role: "reader"}
)

// TestDatabase creates a migrated in-memory SQLite database.
func TestDatabase(t *testing.T) *db.Service {
	t.Helper()

	cfg := &config.Config{
		DatabaseURL: ":memory:",
		AppEnv:      config.EnvTest,
	}

	dbService, err := db.NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := dbService.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	return dbService
}

// TestServer serves handler for the duration of the test.
func TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// TestBackend starts a dev backend holding Admin and Reader.
func TestBackend(t *testing.T, accessTTL time.Duration) (*devbackend.Backend, *httptest.Server) {
	t.Helper()

	b := devbackend.New(Secret, accessTTL)
	b.AddUser(Admin)
	b.AddUser(Reader)
	return b, TestServer(t, b.Handler())
}

// TestConfig returns the default configuration pointed at backendURL with an
// in-memory database.
func TestConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()

	cfg, err := config.LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	cfg.AppEnv = config.EnvTest
	cfg.BackendURL = backendURL
	cfg.DatabaseURL = ":memory:"
	cfg.RedisURL = ""
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Invalid test config: %v", err)
	}
	return cfg
}

// MintCredential signs an access credential with an explicit lifetime.
func MintCredential(t *testing.T, u devbackend.User, iat, exp time.Time) string {
	t.Helper()

	tok, err := devbackend.MintToken([]byte(Secret), u.Subject, u.Role, iat, exp)
	if err != nil {
		t.Fatalf("Failed to mint credential: %v", err)
	}
	return tok
}

// Client returns a browser-like client: it keeps cookies and does not follow
// redirects, so tests can assert on them.
func Client(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}
}
