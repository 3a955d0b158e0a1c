package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/phamdoug22/happyslap-bot/internal/types"
)

// StatusSource is the hub, as far as HTTP is concerned.
type StatusSource interface {
	Status(ctx context.Context) (types.StatusResponse, error)
}

const statusTimeout = 2 * time.Second

func Status(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()

		st, err := src.Status(ctx)
		if err != nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(st)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
