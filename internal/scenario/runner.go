package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/exchange"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/staking"
)

// namedErrors maps the names scripts use in expect_error to ledger errors.
var namedErrors = map[string][]error{
	"not_eligible":           {exchange.ErrNotEligible, staking.ErrNotEligible},
	"already_enabled":        {exchange.ErrAlreadyEnabled, staking.ErrAlreadyEnabled},
	"underpayment":           {exchange.ErrUnderpayment, staking.ErrUnderpayment},
	"insufficient_balance":   {exchange.ErrInsufficientBalance},
	"insufficient_allowance": {exchange.ErrInsufficientAllowance},
	"insufficient_liquidity": {exchange.ErrInsufficientLiquidity},
	"insufficient_funds":     {chain.ErrInsufficientFunds},
	"transfer_rejected":      {chain.ErrTransferRejected},
	"amount_too_small":       {exchange.ErrAmountTooSmall},
	"invalid_amount":         {exchange.ErrInvalidAmount, staking.ErrInvalidAmount, chain.ErrInvalidAmount},
	"no_earnings":            {staking.ErrNoEarnings},
	"no_deposit":             {staking.ErrNoDeposit},
}

func matchesNamed(err error, name string) bool {
	for _, target := range namedErrors[name] {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Runner replays scripts against one chain and its contracts. Heights are
// driven by the script, so the chain must run on a ManualHeight.
type Runner struct {
	chain    *chain.Chain
	exchange *exchange.Engine
	staking  *staking.Ledger
	heights  *chain.ManualHeight
	log      *logrus.Entry
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Chain    *chain.Chain
	Exchange *exchange.Engine
	Staking  *staking.Ledger
	Heights  *chain.ManualHeight
	Logger   *logrus.Entry
}

// NewRunner creates a scenario runner.
func NewRunner(opts RunnerOptions) *Runner {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		chain:    opts.Chain,
		exchange: opts.Exchange,
		staking:  opts.Staking,
		heights:  opts.Heights,
		log:      log.WithField("component", "scenario"),
	}
}

// StepResult records one executed step.
type StepResult struct {
	Index    int
	Op       Op
	Actor    string
	Note     string
	Height   uint64
	Amount   *big.Int // nil when the step yields no amount
	Err      error    // the expected error, when the step was meant to fail
	Duration time.Duration
}

// Result is the outcome of a script run.
type Result struct {
	Script string
	Actors map[string]domain.Address
	Vars   map[string]*big.Int
	Steps  []StepResult
}

// ActorAddress derives the address a script actor runs as.
func ActorAddress(name string) (domain.Address, error) {
	return domain.DeriveContractAddress("actor:" + name)
}

// Run executes script step by step. It stops at the first step that fails
// unexpectedly or whose expectation does not hold, returning the partial
// result alongside the error.
func (r *Runner) Run(ctx context.Context, script *Script) (*Result, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}
	res := &Result{
		Script: script.Name,
		Actors: make(map[string]domain.Address, len(script.Actors)+3),
		Vars:   make(map[string]*big.Int),
	}
	res.Actors["exchange"] = r.exchange.Address()
	res.Actors["staking"] = r.staking.Address()
	res.Actors["developer"] = r.exchange.FeeRecipient()
	for _, name := range script.Actors {
		a, err := ActorAddress(name)
		if err != nil {
			return nil, err
		}
		res.Actors[name] = a
	}

	log := r.log.WithField("script", script.Name)
	for i, st := range script.Steps {
		start := time.Now()
		height, err := r.heights.CurrentHeight(ctx)
		if err != nil {
			return res, err
		}

		x := &execution{runner: r, res: res, step: st}
		amount, err := x.run(ctx)

		sr := StepResult{
			Index:    i,
			Op:       st.Op,
			Actor:    st.Actor,
			Note:     st.Note,
			Height:   height,
			Amount:   amount,
			Duration: time.Since(start),
		}
		if st.ExpectError != "" {
			if err == nil {
				return res, fmt.Errorf("step %d (%s): %w: %s", i, st.Op, ErrUnexpectedPass, st.ExpectError)
			}
			if !matchesNamed(err, st.ExpectError) {
				return res, fmt.Errorf("step %d (%s): expected %s, got: %w", i, st.Op, st.ExpectError, err)
			}
			sr.Err = err
			sr.Amount = nil
		} else if err != nil {
			return res, fmt.Errorf("step %d (%s %s): %w", i, st.Op, st.Actor, err)
		}

		if st.As != "" && sr.Amount != nil {
			res.Vars[st.As] = fixedpoint.Clone(sr.Amount)
		}
		res.Steps = append(res.Steps, sr)

		fields := logrus.Fields{"step": i, "op": st.Op, "height": height}
		if st.Actor != "" {
			fields["actor"] = st.Actor
		}
		if sr.Amount != nil {
			fields["amount"] = fixedpoint.Format(sr.Amount)
		}
		if sr.Err != nil {
			fields["expected_error"] = st.ExpectError
		}
		log.WithFields(fields).Debug("step done")
	}

	log.WithField("steps", len(res.Steps)).Info("scenario completed")
	return res, nil
}

// execution runs a single step.
type execution struct {
	runner *Runner
	res    *Result
	step   Step
}

func (x *execution) actor() domain.Address {
	return x.res.Actors[x.step.Actor]
}

func (x *execution) address(name, field string) (domain.Address, error) {
	a, ok := x.res.Actors[name]
	if !ok {
		return domain.Address{}, fmt.Errorf("%w: %s %q is not an actor", ErrInvalidScript, field, name)
	}
	return a, nil
}

// amount resolves expr. An empty expr yields def; "all" yields all().
// Otherwise expr is a sum of terms such as "$before+$paid-0.5", each term a
// whole-unit decimal or a variable.
func (x *execution) amount(ctx context.Context, field, expr string, def, all func(context.Context) (*big.Int, error)) (*big.Int, error) {
	switch expr {
	case "":
		if def == nil {
			return nil, fmt.Errorf("%w: %s is required for %s", ErrInvalidScript, field, x.step.Op)
		}
		return def(ctx)
	case "all":
		if all == nil {
			return nil, fmt.Errorf("%w: %s does not accept \"all\" for %s", ErrInvalidScript, field, x.step.Op)
		}
		return all(ctx)
	}

	total := fixedpoint.Zero()
	sign := 1
	rest := strings.TrimSpace(expr)
	for {
		end := strings.IndexAny(rest[1:], "+-") + 1
		if end == 0 {
			end = len(rest)
		}
		term := strings.TrimSpace(rest[:end])
		v, err := x.term(field, term)
		if err != nil {
			return nil, err
		}
		if sign < 0 {
			v.Neg(v)
		}
		total.Add(total, v)
		if end == len(rest) {
			return total, nil
		}
		if rest[end] == '-' {
			sign = -1
		} else {
			sign = 1
		}
		rest = strings.TrimSpace(rest[end+1:])
		if rest == "" {
			return nil, fmt.Errorf("%w: %s: dangling operator in %q", ErrInvalidScript, field, expr)
		}
	}
}

func (x *execution) term(field, term string) (*big.Int, error) {
	if strings.HasPrefix(term, "$") {
		v, ok := x.res.Vars[term[1:]]
		if !ok {
			return nil, fmt.Errorf("%w: undefined variable %s", ErrInvalidScript, term)
		}
		return fixedpoint.Clone(v), nil
	}
	v, err := fixedpoint.ParseUnits(term)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScript, field, err)
	}
	return v, nil
}

func zero(context.Context) (*big.Int, error) {
	return fixedpoint.Zero(), nil
}

func (x *execution) tokenBalance(ctx context.Context) (*big.Int, error) {
	return x.runner.exchange.BalanceOf(ctx, x.actor())
}

func (x *execution) run(ctx context.Context) (*big.Int, error) {
	r, st := x.runner, x.step
	caller := x.actor()

	switch st.Op {
	case OpFund:
		v, err := x.amount(ctx, "amount", st.Amount, nil, nil)
		if err != nil {
			return nil, err
		}
		return v, r.chain.Fund(ctx, caller, v)

	case OpSend:
		to, err := x.address(st.To, "to")
		if err != nil {
			return nil, err
		}
		v, err := x.amount(ctx, "amount", st.Amount, nil, nil)
		if err != nil {
			return nil, err
		}
		return v, r.chain.SendNative(ctx, caller, to, v)

	case OpAdvance:
		if st.Blocks == 0 {
			return nil, fmt.Errorf("%w: advance needs blocks", ErrInvalidScript)
		}
		return nil, r.advance(st.Blocks)

	case OpEnableMining:
		v, err := x.amount(ctx, "payment", st.Payment, r.exchange.Fee, nil)
		if err != nil {
			return nil, err
		}
		return v, r.exchange.EnableMining(ctx, caller, v)

	case OpEnableMiningToken:
		fee, err := r.exchange.FeeInToken(ctx)
		if err != nil {
			return nil, err
		}
		return fee, r.exchange.EnableMiningWithToken(ctx, caller)

	case OpMine:
		return r.exchange.Mine(ctx, caller)

	case OpSpend:
		v, err := x.amount(ctx, "tokens", st.Tokens, nil, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		return r.exchange.SpendToken(ctx, caller, v)

	case OpSave:
		v, err := x.amount(ctx, "payment", st.Payment, nil, nil)
		if err != nil {
			return nil, err
		}
		return r.exchange.SaveToken(ctx, caller, v)

	case OpDonate:
		v, err := x.amount(ctx, "payment", st.Payment, nil, nil)
		if err != nil {
			return nil, err
		}
		return v, r.exchange.Donate(ctx, caller, v)

	case OpWithdrawShare:
		return r.exchange.WithdrawShare(ctx, caller)

	case OpTransfer:
		to, err := x.address(st.To, "to")
		if err != nil {
			return nil, err
		}
		v, err := x.amount(ctx, "tokens", st.Tokens, nil, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		return v, r.exchange.Transfer(ctx, caller, to, v)

	case OpApprove:
		spender, err := x.address(st.Spender, "spender")
		if err != nil {
			return nil, err
		}
		v, err := x.amount(ctx, "tokens", st.Tokens, nil, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		return v, r.exchange.Approve(ctx, caller, spender, v)

	case OpBurn:
		v, err := x.amount(ctx, "tokens", st.Tokens, nil, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		return v, r.exchange.Burn(ctx, caller, v)

	case OpDeposit:
		tokens, err := x.amount(ctx, "tokens", st.Tokens, zero, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		payment, err := x.amount(ctx, "payment", st.Payment, nil, nil)
		if err != nil {
			return nil, err
		}
		return tokens, r.staking.Deposit(ctx, caller, tokens, st.Anticipate, payment)

	case OpWithdrawDeposit:
		return r.staking.WithdrawDeposit(ctx, caller)

	case OpWithdrawEmergency:
		return r.staking.WithdrawDepositEmergency(ctx, caller)

	case OpWithdrawEarnings:
		return r.staking.WithdrawEarnings(ctx, caller)

	case OpCompound:
		tokens, err := x.amount(ctx, "tokens", st.Tokens, zero, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		return r.staking.Compound(ctx, caller, tokens, st.Anticipate)

	case OpEnableAnticipation:
		v, err := x.amount(ctx, "payment", st.Payment, r.staking.AnticipationFee, nil)
		if err != nil {
			return nil, err
		}
		return v, r.staking.EnableAnticipation(ctx, caller, v)

	case OpAnticipate:
		tokens, err := x.amount(ctx, "tokens", st.Tokens, nil, x.tokenBalance)
		if err != nil {
			return nil, err
		}
		return r.staking.Anticipate(ctx, caller, tokens)

	case OpEarn:
		return r.staking.Earn(ctx, caller)

	case OpObserve:
		return r.observe(ctx, st.Quantity, caller)

	case OpExpect:
		return x.expect(ctx)
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidScript, st.Op)
}

func (r *Runner) advance(blocks uint64) error {
	if r.heights == nil {
		return errors.New("runner has no manual height source")
	}
	r.heights.Advance(blocks)
	return nil
}

// observe reads quantity q, scoped to a where the quantity is per address.
func (r *Runner) observe(ctx context.Context, q Quantity, a domain.Address) (*big.Int, error) {
	switch q {
	case QuantityTokenBalance:
		return r.exchange.BalanceOf(ctx, a)
	case QuantityNativeBalance:
		return r.chain.NativeBalance(a), nil
	case QuantityPrincipal, QuantityLocked, QuantityEarnings:
		p, err := r.staking.Position(ctx, a)
		if err != nil {
			return nil, err
		}
		switch q {
		case QuantityPrincipal:
			return p.Principal, nil
		case QuantityLocked:
			return p.LockedToken, nil
		}
		return p.Earnings, nil
	case QuantityCurrentDeposited:
		return r.staking.CurrentDepositedNative(ctx)
	case QuantityAvailable:
		return r.staking.AvailableNative(ctx)
	case QuantityTotalSupply:
		return r.exchange.TotalSupply(ctx)
	case QuantityTotalMined:
		return r.exchange.TotalMined(ctx)
	case QuantityPool:
		return r.exchange.PoolBalance(ctx)
	case QuantityShared:
		return r.exchange.SharedBalance(ctx)
	}
	return nil, fmt.Errorf("%w: unknown quantity %q", ErrInvalidScript, q)
}

// expect compares the observed quantity with equals, allowing tolerance
// either way. It returns the observed value.
func (x *execution) expect(ctx context.Context) (*big.Int, error) {
	st := x.step
	got, err := x.runner.observe(ctx, st.Quantity, x.actor())
	if err != nil {
		return nil, err
	}
	want, err := x.amount(ctx, "equals", st.Equals, nil, nil)
	if err != nil {
		return nil, err
	}
	tolerance, err := x.amount(ctx, "tolerance", st.Tolerance, zero, nil)
	if err != nil {
		return nil, err
	}

	diff := new(big.Int).Sub(got, want)
	if diff.CmpAbs(tolerance) > 0 {
		subject := string(st.Quantity)
		if st.Actor != "" {
			subject = st.Actor + " " + subject
		}
		return got, fmt.Errorf("%w: %s is %s, want %s ± %s", ErrExpectation, subject,
			fixedpoint.Format(got), fixedpoint.Format(want), fixedpoint.Format(tolerance))
	}
	return got, nil
}
