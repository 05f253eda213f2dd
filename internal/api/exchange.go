package api

import (
	"context"
	"math/big"
	"net/http"

	"time-ledger/internal/domain"
)

type exchangeSummary struct {
	Address           domain.Address `json:"address"`
	FeeRecipient      domain.Address `json:"fee_recipient"`
	FirstHeight       uint64         `json:"first_height"`
	TotalSupply       string         `json:"total_supply"`
	TotalMined        string         `json:"total_mined"`
	AverageMiningRate string         `json:"average_mining_rate"`
	PoolBalance       string         `json:"pool_balance"`
	SharedBalance     string         `json:"shared_balance"`
	Fee               string         `json:"fee"`
	FeeInToken        string         `json:"fee_in_token"`
}

func (s *Server) handleExchangeSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ex := s.node.Exchange

	first, err := ex.FirstHeight(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := exchangeSummary{
		Address:      ex.Address(),
		FeeRecipient: ex.FeeRecipient(),
		FirstHeight:  first,
	}
	reads := []struct {
		dst  *string
		read func(context.Context) (*big.Int, error)
	}{
		{&out.TotalSupply, ex.TotalSupply},
		{&out.TotalMined, ex.TotalMined},
		{&out.AverageMiningRate, ex.AverageMiningRate},
		{&out.PoolBalance, ex.PoolBalance},
		{&out.SharedBalance, ex.SharedBalance},
		{&out.Fee, ex.Fee},
		{&out.FeeInToken, ex.FeeInToken},
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

type exchangeAccount struct {
	Address           domain.Address `json:"address"`
	Balance           string         `json:"balance"`
	Native            string         `json:"native"`
	MiningAllowed     bool           `json:"mining_allowed"`
	LastMinedHeight   uint64         `json:"last_mined_height"`
	WithdrawableShare string         `json:"withdrawable_share"`
}

func (s *Server) handleExchangeAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ex := s.node.Exchange

	a, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := ex.BalanceOf(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	allowed, err := ex.IsMiningAllowed(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	last, err := ex.LastMinedHeight(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	share, err := ex.WithdrawableShareBalance(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeAccount{
		Address:           a,
		Balance:           units(bal),
		Native:            units(s.node.Chain.NativeBalance(a)),
		MiningAllowed:     allowed,
		LastMinedHeight:   last,
		WithdrawableShare: units(share),
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.Exchange.Allowance(r.Context(), owner, spender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(v)})
}

type spendQuoteResponse struct {
	TokenIn      string `json:"token_in"`
	DeveloperFee string `json:"developer_fee"`
	TokenNet     string `json:"token_net"`
	NativeOut    string `json:"native_out"`
	DividendFee  string `json:"dividend_fee"`
	UserOut      string `json:"user_out"`
	Price        string `json:"price"`
}

func (s *Server) handleQuoteSpend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.node.Exchange.QuoteSpendToken(ctx, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := s.node.Exchange.SwapPriceTokenInverse(ctx, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spendQuoteResponse{
		TokenIn:      units(q.TokenIn),
		DeveloperFee: units(q.DeveloperFee),
		TokenNet:     units(q.TokenNet),
		NativeOut:    units(q.NativeOut),
		DividendFee:  units(q.DividendFee),
		UserOut:      units(q.UserOut),
		Price:        units(price),
	})
}

type saveQuoteResponse struct {
	NativeIn     string `json:"native_in"`
	DeveloperFee string `json:"developer_fee"`
	DividendFee  string `json:"dividend_fee"`
	NativeNet    string `json:"native_net"`
	TokenOut     string `json:"token_out"`
	Price        string `json:"price"`
}

func (s *Server) handleQuoteSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.node.Exchange.QuoteSaveToken(ctx, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := s.node.Exchange.SwapPriceNative(ctx, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveQuoteResponse{
		NativeIn:     units(q.NativeIn),
		DeveloperFee: units(q.DeveloperFee),
		DividendFee:  units(q.DividendFee),
		NativeNet:    units(q.NativeNet),
		TokenOut:     units(q.TokenOut),
		Price:        units(price),
	})
}

// callRequest is the body shared by exchange operations. Fields an
// operation does not use are ignored.
type callRequest struct {
	Caller  domain.Address `json:"caller"`
	To      domain.Address `json:"to,omitempty"`
	Owner   domain.Address `json:"owner,omitempty"`
	Spender domain.Address `json:"spender,omitempty"`
	Amount  string         `json:"amount,omitempty"`
	Payment string         `json:"payment,omitempty"`
}

func (s *Server) decodeCall(r *http.Request) (callRequest, error) {
	var req callRequest
	if err := decode(r, &req); err != nil {
		return req, err
	}
	return req, requireCaller(r, req.Caller)
}

// payingCall runs op with the caller and a required native payment.
func (s *Server) payingCall(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.Address, *big.Int) (*big.Int, error)) {
	req, err := s.decodeCall(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), req.Caller, payment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(out)})
}

func (s *Server) handleEnableMining(w http.ResponseWriter, r *http.Request) {
	s.payingCall(w, r, func(ctx context.Context, caller domain.Address, payment *big.Int) (*big.Int, error) {
		return payment, s.node.Exchange.EnableMining(ctx, caller, payment)
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.payingCall(w, r, s.node.Exchange.SaveToken)
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	s.payingCall(w, r, func(ctx context.Context, caller domain.Address, payment *big.Int) (*big.Int, error) {
		return payment, s.node.Exchange.Donate(ctx, caller, payment)
	})
}

// callerOnly runs op with just the caller.
func (s *Server) callerOnly(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.Address) (*big.Int, error)) {
	req, err := s.decodeCall(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(out)})
}

func (s *Server) handleEnableMiningWithToken(w http.ResponseWriter, r *http.Request) {
	s.callerOnly(w, r, func(ctx context.Context, caller domain.Address) (*big.Int, error) {
		fee, err := s.node.Exchange.FeeInToken(ctx)
		if err != nil {
			return nil, err
		}
		return fee, s.node.Exchange.EnableMiningWithToken(ctx, caller)
	})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	s.callerOnly(w, r, s.node.Exchange.Mine)
}

func (s *Server) handleWithdrawShare(w http.ResponseWriter, r *http.Request) {
	s.callerOnly(w, r, s.node.Exchange.WithdrawShare)
}

// tokenCall runs op with the caller, the decoded request and a required
// token amount.
func (s *Server) tokenCall(w http.ResponseWriter, r *http.Request, op func(context.Context, callRequest, *big.Int) (*big.Int, error)) {
	req, err := s.decodeCall(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), req, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: units(out)})
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	s.tokenCall(w, r, func(ctx context.Context, req callRequest, amount *big.Int) (*big.Int, error) {
		return s.node.Exchange.SpendToken(ctx, req.Caller, amount)
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	s.tokenCall(w, r, func(ctx context.Context, req callRequest, amount *big.Int) (*big.Int, error) {
		if req.To.IsZero() {
			return nil, badRequest("to is required")
		}
		return amount, s.node.Exchange.Transfer(ctx, req.Caller, req.To, amount)
	})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	s.tokenCall(w, r, func(ctx context.Context, req callRequest, amount *big.Int) (*big.Int, error) {
		if req.Owner.IsZero() || req.To.IsZero() {
			return nil, badRequest("owner and to are required")
		}
		return amount, s.node.Exchange.TransferFrom(ctx, req.Caller, req.Owner, req.To, amount)
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.tokenCall(w, r, func(ctx context.Context, req callRequest, amount *big.Int) (*big.Int, error) {
		if req.Spender.IsZero() {
			return nil, badRequest("spender is required")
		}
		return amount, s.node.Exchange.Approve(ctx, req.Caller, req.Spender, amount)
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	s.tokenCall(w, r, func(ctx context.Context, req callRequest, amount *big.Int) (*big.Int, error) {
		return amount, s.node.Exchange.Burn(ctx, req.Caller, amount)
	})
}
