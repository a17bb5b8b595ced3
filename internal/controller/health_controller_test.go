package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestReadiness_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := NewOpsRouter(nil, client)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"redis":"ok"}}`, w.Body.String())

	mr.Close()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"not ready","checks":{"redis":"unavailable"}}`, w.Body.String())
}

func TestReadiness_ReportsEveryCheck(t *testing.T) {
	h := NewHealthController(
		[]DependencyCheck{{Name: "journal", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }}},
		[]DependencyCheck{{Name: "redis", Ping: func(context.Context) error { return nil }}},
	)
	r := chi.NewRouter()
	h.Mount(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"not ready","checks":{"journal":"unavailable","redis":"ok"}}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "refused")
}

func TestReadiness_NoDependencies(t *testing.T) {
	r := NewOpsRouter(nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{}}`, w.Body.String())
}
