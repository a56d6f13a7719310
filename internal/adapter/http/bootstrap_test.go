package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"fastap/internal/core/telemetry"
	"fastap/pkg"
	"fastap/pkg/config"
)

func testConfig() *config.AppConfig {
	cfg := config.GetDefaultConfig()
	cfg.Store = config.StoreSQLite
	cfg.SQL.DatabasePath = ":memory:"
	cfg.SQL.MigrationsPath = filepath.Join(pkg.FindProjectRoot(), "db", "migrations")
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.RateLimitEnabled = false

	return cfg
}

func TestNewServer_SQLite(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	server, err := NewServer(ctx, testConfig(), nil, telemetry.NewAppMetrics(prometheus.NewRegistry()), config.NewNopLogger())
	Expect(err).ToNot(HaveOccurred())
	defer server.container.Close(ctx)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	Expect(rr.Code).To(Equal(http.StatusOK))
	Expect(rr.Body.String()).To(MatchJSON(`{"status": "ok", "checks": {"sqlite": "ok"}}`))

	body := `{"username": "alice1", "name": "Alice Smith", "email": "a@b.com", "password": "Passw0rd"}`
	req := httptest.NewRequest(http.MethodPost, "/user/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	Expect(rr.Code).To(Equal(http.StatusOK))
	Expect(rr.Header().Get("X-Request-ID")).ToNot(BeEmpty())
}

func TestNewServer_InvalidConfig(t *testing.T) {
	RegisterTestingT(t)

	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"

	_, err := NewServer(context.Background(), cfg, nil, nil, config.NewNopLogger())
	Expect(err).To(MatchError(ContainSubstring("jwt secret")))
}

func TestNewContainer_UnknownStore(t *testing.T) {
	RegisterTestingT(t)

	cfg := testConfig()
	cfg.Store = "cassandra"

	_, err := NewContainer(context.Background(), cfg, nil, nil, config.NewNopLogger().Zap())
	Expect(err).To(MatchError(ContainSubstring("unknown store")))
}
