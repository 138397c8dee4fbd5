package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/core"
	internalcontroller "github.com/switchboard-io/switchboard/internal/controller"
	"github.com/switchboard-io/switchboard/internal/serde"
)

func newTestHandler() http.Handler {
	pool := internalcontroller.NewPool("controller-1", []byte("psk"), hclog.NewNullLogger())
	states := internalcontroller.NewStateCache()
	pusher := internalcontroller.NewPusher(serde.NewRegistry(), []byte("psk"), "controller-1")
	ctl := internalcontroller.New(pool, states, pusher, hclog.NewNullLogger())
	return newAPIHandler(ctl, states, hclog.NewNullLogger())
}

func TestAPIHandlerHealthz(t *testing.T) {
	handler := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIHandlerKernelsSnapshot(t *testing.T) {
	handler := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/kernels", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var states map[string]core.KernelState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&states))
	require.Empty(t, states)
}

func TestAPIHandlerConfigPushUnknownKernel(t *testing.T) {
	handler := newTestHandler()

	body, err := (serde.JSONCodec{}).EncodeValue(core.NewServiceConfig().ToValue())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/kernels/kernel-1/config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPIHandlerConfigPushRejectsBadJSON(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/kernels/kernel-1/config", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIHandlerConfigPushRejectsWrongMethod(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/kernels/kernel-1/config", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
