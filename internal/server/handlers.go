package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/runnerr0/browsedash/internal/errors"
	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/identity"
	"github.com/runnerr0/browsedash/internal/storage"
)

// ingestRequest is the body of POST /api/sync/ingest. Only rows is
// required; the other fields describe the sender and never fail a decode.
type ingestRequest struct {
	DeviceID    any                       `json:"deviceId"`
	WindowDays  storage.LooseNumber       `json:"windowDays"`
	GeneratedAt storage.LooseNumber       `json:"generatedAt"`
	Rows        *[]storage.DomainDailyRow `json:"rows"`
}

type ingestResponse struct {
	OK           bool   `json:"ok"`
	Upserted     int    `json:"upserted"`
	UserIDPrefix string `json:"userIdPrefix,omitempty"`
}

type summaryResponse struct {
	OK          bool                  `json:"ok"`
	Days        int                   `json:"days"`
	LastSync    *time.Time            `json:"lastSync"`
	DomainDaily []storage.DomainDaily `json:"domainDaily"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.metrics.recordIngest(OutcomeTooLarge, 0)
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", s.logger)
			return
		}
		s.metrics.recordIngest(OutcomeInvalid, 0)
		writeError(w, http.StatusBadRequest, "Invalid payload", s.logger)
		return
	}
	if req.Rows == nil {
		s.metrics.recordIngest(OutcomeInvalid, 0)
		writeError(w, http.StatusBadRequest, "Invalid payload", s.logger)
		return
	}
	rows := *req.Rows
	if len(rows) > storage.MaxBatchRows {
		s.metrics.recordIngest(OutcomeTooLarge, len(rows))
		writeError(w, http.StatusRequestEntityTooLarge, "Too many rows", s.logger)
		return
	}

	n, err := s.store.UpsertDomainDaily(r.Context(), userID, rows)
	if err != nil {
		s.writeIngestError(r.Context(), w, userID, len(rows), err)
		return
	}

	s.metrics.recordIngest(OutcomeOK, n)
	s.logger.Debug("ingested batch",
		"user", identity.Prefix(userID),
		"device", req.DeviceID,
		"rows", n,
	)

	resp := ingestResponse{OK: true, Upserted: n}
	if n > 0 {
		resp.UserIDPrefix = identity.Prefix(userID)
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

func (s *Server) writeIngestError(ctx context.Context, w http.ResponseWriter, userID string, rows int, err error) {
	var coded *apperrors.Error
	switch {
	case apperrors.Is(err, apperrors.ErrValidation) && apperrors.As(err, &coded):
		s.metrics.recordIngest(OutcomeInvalid, rows)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid rows", Detail: coded.Message, Details: coded.Details}, s.logger)
	case apperrors.Is(err, apperrors.ErrTooLarge):
		s.metrics.recordIngest(OutcomeTooLarge, rows)
		writeError(w, http.StatusRequestEntityTooLarge, "Too many rows", s.logger)
	default:
		s.metrics.recordIngest(OutcomeError, rows)
		s.logger.ErrorContext(ctx, "ingest failed", "user", identity.Prefix(userID), "error", err)
		writeAppError(w, apperrors.Wrap(err, apperrors.CodeInternal, "Internal error"), s.logger)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	days := history.ParseDays(r.URL.Query().Get("days"))

	sum, err := s.store.DomainDailySince(r.Context(), userID, days)
	if err != nil {
		s.metrics.summaries.WithLabelValues(OutcomeError).Inc()
		s.logger.ErrorContext(r.Context(), "summary failed", "user", identity.Prefix(userID), "error", err)
		writeAppError(w, apperrors.Wrap(err, apperrors.CodeInternal, "Internal error"), s.logger)
		return
	}
	s.metrics.summaries.WithLabelValues(OutcomeOK).Inc()

	rows := sum.Rows
	if rows == nil {
		rows = []storage.DomainDaily{}
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		OK:          true,
		Days:        sum.Days,
		LastSync:    sum.LastSync,
		DomainDaily: rows,
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeAppError(w, apperrors.Wrap(err, apperrors.CodeUnavailable, "Database unavailable"), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, s.logger)
}
