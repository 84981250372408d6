package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cassa/internal/cache"
	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

type summaryResponse struct {
	core.MonthSummary
	Balance decimal.Decimal `json:"balance"`
}

// handleSummary serves a month summary, computing it from the mirrors on a
// cache miss. Every mutation of the group drops its cached summaries.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	mp, ok := s.month(w, r)
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	key := cache.SummaryKey(ws.GroupID(), mp.Year, mp.Month)

	sum, hit := core.MonthSummary{}, false
	if s.summaries != nil {
		sum, hit = s.summaries.Get(key)
	}
	if !hit {
		sum = ws.Summary(mp.Year, mp.Month)
		if s.summaries != nil {
			s.summaries.Set(key, sum)
		}
	}
	NewHTMXResponse().
		Header("X-Cache", cacheStatus(hit)).
		JSON(summaryResponse{MonthSummary: sum, Balance: sum.Balance()}).
		Write(w)
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// handleReload rereads the group from the store on this instance and asks
// the others to do the same.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := s.workspaces.Invalidate(ctx, ws.GroupID()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableGroups, log.OpReload, ws.GroupID())
	mutated(w, http.StatusOK, "workspace", ws.GroupID(), "Data reloaded", map[string]string{"group_id": ws.GroupID()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil || !s.exporter.Enabled() {
		ServiceUnavailableError("Export is not configured").Write(w)
		return
	}
	mp, ok := s.month(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	groupID := workspaceFrom(ctx).GroupID()
	ref, err := s.exporter.Export(ctx, groupID, mp.Year, mp.Month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Month exported",
		log.FieldOperation, log.OpExport,
		log.FieldYear, mp.Year,
		log.FieldMonth, mp.Month)
	NewHTMXResponse().
		TriggerSuccessNotification("Month exported").
		JSON(map[string]any{"group_id": groupID, "year": mp.Year, "month": mp.Month, "ref": ref}).
		Write(w)
}
