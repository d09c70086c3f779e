package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/internal/handler"
)

func TestOpsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ops := httptest.NewServer(handler.OpsRouter(ts.deps))
	defer ops.Close()

	resp, err := http.Get(ops.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	// A logged-in user shows up in the stats.
	tc := ts.dial(t)
	ts.register(t, tc, "alice")
	ts.login(t, tc, "alice")

	resp, err = http.Get(ops.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats struct {
		Sessions      int   `json:"sessions"`
		OnlineUserIDs []int `json:"online_user_ids"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, []int{1}, stats.OnlineUserIDs)
}
