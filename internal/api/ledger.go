package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"time-ledger/internal/domain"
	"time-ledger/internal/reporting"
	"time-ledger/internal/storage"
)

func (s *Server) handleNativeBalance(w http.ResponseWriter, r *http.Request) {
	a, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(s.node.Chain.NativeBalance(a))})
}

type sendRequest struct {
	From   domain.Address `json:"from"`
	To     domain.Address `json:"to"`
	Amount string         `json:"amount"`
}

func (s *Server) handleSendNative(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.To.IsZero() {
		s.writeError(w, r, badRequest("to is required"))
		return
	}
	if err := requireCaller(r, req.From); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.Chain.SendNative(r.Context(), req.From, req.To, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(amount)})
}

type eventResponse struct {
	ID           string         `json:"id"`
	Height       uint64         `json:"height"`
	Sequence     int            `json:"sequence"`
	Contract     string         `json:"contract"`
	Kind         string         `json:"kind"`
	Actor        domain.Address `json:"actor"`
	Counterparty domain.Address `json:"counterparty"`
	Amount       string         `json:"amount"`
	Value        string         `json:"value,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func toEventResponse(e domain.Event, i int) eventResponse {
	row := reporting.ToEventRow(e, i)
	return eventResponse{
		ID:           row.ID,
		Height:       row.Height,
		Sequence:     row.Sequence,
		Contract:     row.Contract,
		Kind:         row.Kind,
		Actor:        row.Actor,
		Counterparty: row.Counterparty,
		Amount:       row.Amount,
		Value:        row.Value,
		Timestamp:    row.Timestamp,
	}
}

// eventFilter reads from, to, contract, kind, actor and limit query
// parameters.
func eventFilter(r *http.Request) (storage.EventFilter, error) {
	q := r.URL.Query()
	var f storage.EventFilter
	var err error
	if v := q.Get("from"); v != "" {
		if f.FromHeight, err = strconv.ParseUint(v, 10, 64); err != nil {
			return f, badRequest("from: %v", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.ToHeight, err = strconv.ParseUint(v, 10, 64); err != nil {
			return f, badRequest("to: %v", err)
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, badRequest("limit must be a non-negative integer")
		}
	}
	if v := q.Get("actor"); v != "" {
		a, err := domain.ParseAddress(v)
		if err != nil {
			return f, badRequest("actor: %v", err)
		}
		f.Actor = &a
	}
	f.Contract = q.Get("contract")
	f.Kind = domain.EventKind(q.Get("kind"))
	return f, nil
}

func (s *Server) listEvents(r *http.Request) ([]domain.Event, error) {
	f, err := eventFilter(r)
	if err != nil {
		return nil, err
	}
	return s.node.Events.List(r.Context(), f)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.listEvents(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(events, toEventResponse))
}

func (s *Server) handleEventsCSV(w http.ResponseWriter, r *http.Request) {
	events, err := s.listEvents(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := reporting.WriteEventsCSV(w, events); err != nil {
		s.log.WithError(err).Warn("write events csv")
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Generate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(reporting.RenderMarkdown(report)))
}
