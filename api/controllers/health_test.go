package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/vaccine-orders/pkg/config"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(testConfig()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-Vop-Env"))
	assert.JSONEq(t, `{"data":{"status":"live"}}`, resp.Body.String())
}

func TestHealthReadySkipsMissingRedis(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(testConfig(), nil, stubPinger{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"status":"ready","checks":{"database":"up"}}}`, resp.Body.String())
}

func TestHealthReadyReportsFailedDependency(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(testConfig(), nil, stubPinger{}, stubPinger{err: errors.New("refused")}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"redis":"down"`)
	assert.Contains(t, resp.Body.String(), `"database":"up"`)
}
