package server

import (
	"log/slog"
	"net/http"

	"github.com/raterudder/renacsync/pkg/common"
	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/poller"
	"github.com/raterudder/renacsync/pkg/types"
)

type statusResponse struct {
	poller.Status
	Version string `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Status:  s.poller.Status(),
		Version: common.Version(),
	})
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prefix := r.URL.Query().Get("prefix")

	points, err := s.storage.ListPoints(ctx, prefix)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list points", slog.String("prefix", prefix), slog.Any("error", err))
		writeJSONError(w, "failed to list points", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []types.Point{}
	}
	writeJSON(w, struct {
		Points []types.Point `json:"points"`
	}{Points: points})
}
