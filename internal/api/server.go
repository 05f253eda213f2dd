// Package api exposes the ledger over a JSON HTTP interface.
// Amounts cross the wire as whole-unit decimal strings ("1.5").
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/exchange"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
	"time-ledger/internal/orchestrator"
	"time-ledger/internal/reporting"
	"time-ledger/internal/staking"
	"time-ledger/internal/storage"
)

// Server serves one assembled node.
type Server struct {
	node    *orchestrator.Node
	reports *reporting.Generator
	auth    *authenticator
	log     *logrus.Entry
	started time.Time
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) { s.log = log }
}

// WithClock overrides the wall clock used for uptime and reports.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server for node.
func New(node *orchestrator.Node, opts ...Option) *Server {
	s := &Server{
		node: node,
		log:  logrus.NewEntry(logrus.StandardLogger()),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	s.auth = newAuthenticator(s.now)
	s.reports = reporting.NewGenerator(node.Exchange, node.Staking, node.Chain, node.Events).WithClock(s.now)
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument, s.authenticate)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/native/send", s.handleSendNative).Methods(http.MethodPost)
	r.HandleFunc("/native/{address}", s.handleNativeBalance).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/events.csv", s.handleEventsCSV).Methods(http.MethodGet)
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)

	ex := r.PathPrefix("/exchange").Subrouter()
	ex.HandleFunc("", s.handleExchangeSummary).Methods(http.MethodGet)
	ex.HandleFunc("/accounts/{address}", s.handleExchangeAccount).Methods(http.MethodGet)
	ex.HandleFunc("/allowances/{owner}/{spender}", s.handleAllowance).Methods(http.MethodGet)
	ex.HandleFunc("/quote/spend", s.handleQuoteSpend).Methods(http.MethodGet)
	ex.HandleFunc("/quote/save", s.handleQuoteSave).Methods(http.MethodGet)
	ex.HandleFunc("/enable-mining", s.handleEnableMining).Methods(http.MethodPost)
	ex.HandleFunc("/enable-mining-token", s.handleEnableMiningWithToken).Methods(http.MethodPost)
	ex.HandleFunc("/mine", s.handleMine).Methods(http.MethodPost)
	ex.HandleFunc("/spend", s.handleSpend).Methods(http.MethodPost)
	ex.HandleFunc("/save", s.handleSave).Methods(http.MethodPost)
	ex.HandleFunc("/donate", s.handleDonate).Methods(http.MethodPost)
	ex.HandleFunc("/withdraw-share", s.handleWithdrawShare).Methods(http.MethodPost)
	ex.HandleFunc("/transfer", s.handleTransfer).Methods(http.MethodPost)
	ex.HandleFunc("/transfer-from", s.handleTransferFrom).Methods(http.MethodPost)
	ex.HandleFunc("/approve", s.handleApprove).Methods(http.MethodPost)
	ex.HandleFunc("/burn", s.handleBurn).Methods(http.MethodPost)

	st := r.PathPrefix("/staking").Subrouter()
	st.HandleFunc("", s.handleStakingSummary).Methods(http.MethodGet)
	st.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	st.HandleFunc("/positions/{address}", s.handlePosition).Methods(http.MethodGet)
	st.HandleFunc("/positions/{address}/anticipation", s.handleQuoteAnticipation).Methods(http.MethodGet)
	st.HandleFunc("/deposit", s.handleDeposit).Methods(http.MethodPost)
	st.HandleFunc("/withdraw-deposit", s.handleWithdrawDeposit).Methods(http.MethodPost)
	st.HandleFunc("/withdraw-emergency", s.handleWithdrawEmergency).Methods(http.MethodPost)
	st.HandleFunc("/withdraw-earnings", s.handleWithdrawEarnings).Methods(http.MethodPost)
	st.HandleFunc("/compound", s.handleCompound).Methods(http.MethodPost)
	st.HandleFunc("/enable-anticipation", s.handleEnableAnticipation).Methods(http.MethodPost)
	st.HandleFunc("/anticipate", s.handleAnticipate).Methods(http.MethodPost)
	st.HandleFunc("/earn", s.handleEarn).Methods(http.MethodPost)

	return r
}

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		observability.RecordHTTPRequest(route, rec.status)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Status   string         `json:"status"`
	Uptime   string         `json:"uptime"`
	Height   uint64         `json:"height"`
	Exchange domain.Address `json:"exchange"`
	Staking  domain.Address `json:"staking"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   "running",
		Uptime:   s.now().Sub(s.started).Round(time.Second).String(),
		Height:   s.node.Chain.LastHeight(),
		Exchange: s.node.Exchange.Address(),
		Staking:  s.node.Staking.Address(),
	})
}

// errBadRequest wraps malformed input.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps ledger errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, exchange.ErrInvalidAmount),
		errors.Is(err, staking.ErrInvalidAmount),
		errors.Is(err, chain.ErrInvalidAmount),
		errors.Is(err, exchange.ErrAmountTooSmall):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrUnderpayment),
		errors.Is(err, staking.ErrUnderpayment),
		errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrInsufficientAllowance),
		errors.Is(err, chain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, exchange.ErrNotEligible),
		errors.Is(err, exchange.ErrAlreadyEnabled),
		errors.Is(err, exchange.ErrInsufficientLiquidity),
		errors.Is(err, staking.ErrNotEligible),
		errors.Is(err, staking.ErrAlreadyEnabled),
		errors.Is(err, staking.ErrNoEarnings),
		errors.Is(err, staking.ErrNoDeposit),
		errors.Is(err, chain.ErrTransferRejected):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrNotInitialized),
		errors.Is(err, staking.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func parseAmount(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, badRequest("%s is required", name)
	}
	v, err := fixedpoint.ParseUnits(s)
	if err != nil {
		return nil, badRequest("%s: %v", name, err)
	}
	return v, nil
}

// optionalAmount treats an empty string as zero.
func optionalAmount(name, s string) (*big.Int, error) {
	if s == "" {
		return fixedpoint.Zero(), nil
	}
	return parseAmount(name, s)
}

func pathAddress(r *http.Request, name string) (domain.Address, error) {
	a, err := domain.ParseAddress(mux.Vars(r)[name])
	if err != nil {
		return domain.Address{}, badRequest("%s: %v", name, err)
	}
	return a, nil
}

func units(v *big.Int) string {
	return fixedpoint.Format(v)
}

// amountResponse reports the single quantity an operation paid out.
type amountResponse struct {
	Amount string `json:"amount"`
}
