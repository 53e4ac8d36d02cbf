package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/autoinvest/internal/domain"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 500
)

// TenantSummary is one row of GET /api/tenants.
type TenantSummary struct {
	Session    domain.SessionInfo `json:"session"`
	Balance    domain.Money       `json:"balance"`
	Strategy   string             `json:"strategy,omitempty"`
	Pending    int                `json:"pending_charges"`
	Operations int                `json:"operations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "autoinvest",
		"tenants": len(s.order),
	})
}

func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	var counts map[string]int
	if s.ledger != nil {
		var err error
		counts, err = s.ledger.CountByAccount(r.Context())
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to count ledger entries")
		}
	}

	out := make([]TenantSummary, 0, len(s.order))
	for _, name := range s.order {
		t := s.tenants[name]
		summary := TenantSummary{
			Session:    t.SessionInfo(),
			Balance:    t.Portfolio().Balance(),
			Pending:    len(t.Portfolio().Pending()),
			Operations: counts[name],
		}
		if p, ok := t.Strategy(); ok {
			summary.Strategy = p.Name()
		}
		out = append(out, summary)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	t, ok := s.tenants[account]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown account "+account)
		return
	}
	s.writeJSON(w, http.StatusOK, t.Portfolio().Overview())
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.scheduler.Submitted())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ledger not available")
		return
	}

	limit := defaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	entries, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read ledger")
		s.writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
