package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nbakr/marko/internal/audit"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/pipeline"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	return New(cfg, Deps{
		PipelineStore: pipeline.NewStore(database),
		LearningStore: learning.NewStore(database),
		AuditStore:    audit.NewStore(database),
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRoutesMounted(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/learnings",
		"/api/audit",
		"/api/conversations?user_id=u1",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}
