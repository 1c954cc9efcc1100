package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"immo-scraper/models"
	"immo-scraper/utils"
)

type staticStore struct {
	snap models.StateSnapshot
	err  error
}

func (s *staticStore) Load(context.Context) (models.StateSnapshot, error) { return s.snap, s.err }

func (s *staticStore) Save(_ context.Context, snap models.StateSnapshot) error {
	s.snap = snap
	return nil
}

func init() { gin.SetMode(gin.TestMode) }

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: body is not JSON: %v", path, err)
	}
	return rec.Code, body
}

func TestServerRoutes(t *testing.T) {
	store := &staticStore{snap: models.StateSnapshot{
		"de_ber_10115_apa_rent_1200_65_3_59f24771": {Status: models.StatusActive, Checksum: "abc"},
	}}
	srv := NewServer(store, utils.NewNopLogger())
	router := srv.NewRouter()

	if code, body := get(t, router, "/healthz"); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("/healthz = %d %v", code, body)
	}
	if code, _ := get(t, router, "/stats"); code != http.StatusNotFound {
		t.Errorf("/stats before run = %d, want 404", code)
	}

	srv.SetRun(models.RunStats{RunID: "run-1", TotalProcessed: 7}, []*models.Listing{
		{ID: "a", Source: models.SourceImmowelt},
		{ID: "b", Source: models.SourceImmonet},
	})
	if code, body := get(t, router, "/stats"); code != http.StatusOK || body["runId"] != "run-1" {
		t.Errorf("/stats = %d %v", code, body)
	}
	if _, body := get(t, router, "/listings?source=immonet"); body["count"] != float64(1) {
		t.Errorf("/listings filtered = %v", body)
	}

	if code, body := get(t, router, "/snapshot"); code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("/snapshot = %d %v", code, body)
	}
	if code, _ := get(t, router, "/snapshot/de_ber_10115_apa_rent_1200_65_3_59f24771"); code != http.StatusOK {
		t.Errorf("/snapshot/:id = %d", code)
	}
	if code, _ := get(t, router, "/snapshot/missing"); code != http.StatusNotFound {
		t.Errorf("/snapshot/missing = %d, want 404", code)
	}
}

func TestServerSnapshotLoadError(t *testing.T) {
	srv := NewServer(&staticStore{err: errors.New("redis down")}, utils.NewNopLogger())
	if code, _ := get(t, srv.NewRouter(), "/snapshot"); code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", code)
	}
}
