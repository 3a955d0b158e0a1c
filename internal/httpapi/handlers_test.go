package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/hub"
	"github.com/phamdoug22/happyslap-bot/internal/selector"
	"github.com/phamdoug22/happyslap-bot/internal/types"
)

type stuckSource struct{}

func (stuckSource) Status(ctx context.Context) (types.StatusResponse, error) {
	<-ctx.Done()
	return types.StatusResponse{}, ctx.Err()
}

func TestStatus_ServesHubState(t *testing.T) {
	h := hub.NewHub(context.Background(), clock.NewFake(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)))
	defer h.Shutdown()
	h.RoundStarted("r1")
	h.GameHosted("r1", selector.LiveGame{JoinCode: "QX7PZ", Strategy: "discover"})

	srv := httptest.NewServer(SetupRoutes(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st types.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, hub.StateHosting, st.State)
	assert.Equal(t, 1, st.Rounds)
	require.NotNil(t, st.Lobby)
	assert.Equal(t, "QX7PZ", st.Lobby.JoinCode)
}

func TestStatus_Unavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	rec := httptest.NewRecorder()

	SetupRoutes(stuckSource{}).ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupRoutes(stuckSource{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
