package api

import (
	"context"
	"math/big"
	"net/http"

	"github.com/samber/lo"

	"time-ledger/internal/domain"
	"time-ledger/internal/staking"
)

type stakingSummary struct {
	Address                domain.Address `json:"address"`
	FirstHeight            uint64         `json:"first_height"`
	OneYear                uint64         `json:"one_year"`
	CurrentROI             string         `json:"current_roi"`
	AnticipationFee        string         `json:"anticipation_fee"`
	AvailableNative        string         `json:"available_native"`
	CurrentDepositedNative string         `json:"current_deposited_native"`
	TotalDepositedNative   string         `json:"total_deposited_native"`
	TotalBurnedToken       string         `json:"total_burned_token"`
}

func (s *Server) handleStakingSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := s.node.Staking

	first, err := st.FirstHeight(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := stakingSummary{
		Address:     st.Address(),
		FirstHeight: first,
		OneYear:     st.OneYear(),
	}
	reads := []struct {
		dst  *string
		read func(context.Context) (*big.Int, error)
	}{
		{&out.CurrentROI, st.CurrentROI},
		{&out.AnticipationFee, st.AnticipationFee},
		{&out.AvailableNative, st.AvailableNative},
		{&out.CurrentDepositedNative, st.CurrentDepositedNative},
		{&out.TotalDepositedNative, st.TotalDepositedNative},
		{&out.TotalBurnedToken, st.TotalBurnedToken},
	}
	for _, rd := range reads {
		v, err := rd.read(ctx)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		*rd.dst = units(v)
	}
	writeJSON(w, http.StatusOK, out)
}

type positionResponse struct {
	Address             domain.Address `json:"address"`
	Principal           string         `json:"principal"`
	LockedToken         string         `json:"locked_token"`
	LastHeight          uint64         `json:"last_height"`
	AnticipationEnabled bool           `json:"anticipation_enabled"`
	Earnings            string         `json:"earnings"`
}

func toPositionResponse(p staking.Position, _ int) positionResponse {
	return positionResponse{
		Address:             p.Address,
		Principal:           units(p.Principal),
		LockedToken:         units(p.LockedToken),
		LastHeight:          p.LastHeight,
		AnticipationEnabled: p.AnticipationEnabled,
		Earnings:            units(p.Earnings),
	}
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.node.Staking.Positions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(positions, toPositionResponse))
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	a, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.node.Staking.Position(r.Context(), a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(p, 0))
}

type anticipationQuoteResponse struct {
	TokenAmount  string `json:"token_amount"`
	Undiscounted string `json:"undiscounted"`
	Discounted   string `json:"discounted"`
}

func (s *Server) handleQuoteAnticipation(w http.ResponseWriter, r *http.Request) {
	a, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens, err := parseAmount("tokens", r.URL.Query().Get("tokens"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.node.Staking.QuoteAnticipation(r.Context(), a, tokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, anticipationQuoteResponse{
		TokenAmount:  units(q.TokenAmount),
		Undiscounted: units(q.Undiscounted),
		Discounted:   units(q.Discounted),
	})
}

// stakeRequest is the body shared by staking operations.
type stakeRequest struct {
	Caller     domain.Address `json:"caller"`
	Tokens     string         `json:"tokens,omitempty"`
	Payment    string         `json:"payment,omitempty"`
	Anticipate bool           `json:"anticipate,omitempty"`
}

// stake decodes a stakeRequest and runs op, replying with the amount it
// returns.
func (s *Server) stake(w http.ResponseWriter, r *http.Request, op func(context.Context, stakeRequest) (*big.Int, error)) {
	var req stakeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireCaller(r, req.Caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(out)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		payment, err := parseAmount("payment", req.Payment)
		if err != nil {
			return nil, err
		}
		tokens, err := optionalAmount("tokens", req.Tokens)
		if err != nil {
			return nil, err
		}
		return payment, s.node.Staking.Deposit(ctx, req.Caller, tokens, req.Anticipate, payment)
	})
}

func (s *Server) handleWithdrawDeposit(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		return s.node.Staking.WithdrawDeposit(ctx, req.Caller)
	})
}

func (s *Server) handleWithdrawEmergency(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		return s.node.Staking.WithdrawDepositEmergency(ctx, req.Caller)
	})
}

func (s *Server) handleWithdrawEarnings(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		return s.node.Staking.WithdrawEarnings(ctx, req.Caller)
	})
}

func (s *Server) handleCompound(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		tokens, err := optionalAmount("tokens", req.Tokens)
		if err != nil {
			return nil, err
		}
		return s.node.Staking.Compound(ctx, req.Caller, tokens, req.Anticipate)
	})
}

func (s *Server) handleEnableAnticipation(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		payment, err := parseAmount("payment", req.Payment)
		if err != nil {
			return nil, err
		}
		return payment, s.node.Staking.EnableAnticipation(ctx, req.Caller, payment)
	})
}

func (s *Server) handleAnticipate(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		tokens, err := parseAmount("tokens", req.Tokens)
		if err != nil {
			return nil, err
		}
		return s.node.Staking.Anticipate(ctx, req.Caller, tokens)
	})
}

func (s *Server) handleEarn(w http.ResponseWriter, r *http.Request) {
	s.stake(w, r, func(ctx context.Context, req stakeRequest) (*big.Int, error) {
		return s.node.Staking.Earn(ctx, req.Caller)
	})
}
