// Package scenario replays scripted sequences of ledger operations.
//
// A Script names actors and lists steps. Each step is one ledger operation,
// a height advance, or an assertion on observed state. Scripts are HJSON so
// they can be written by hand.
package scenario

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/hjson/hjson-go/v4"
)

// Script errors.
var (
	ErrInvalidScript  = errors.New("invalid script")
	ErrUnknownScript  = errors.New("unknown script")
	ErrExpectation    = errors.New("expectation failed")
	ErrUnexpectedPass = errors.New("step succeeded but an error was expected")
)

// Op names a step kind.
type Op string

// Chain operations.
const (
	OpFund    Op = "fund"
	OpSend    Op = "send"
	OpAdvance Op = "advance"
)

// Exchange operations.
const (
	OpEnableMining      Op = "enable_mining"
	OpEnableMiningToken Op = "enable_mining_token"
	OpMine              Op = "mine"
	OpSpend             Op = "spend"
	OpSave              Op = "save"
	OpDonate            Op = "donate"
	OpWithdrawShare     Op = "withdraw_share"
	OpTransfer          Op = "transfer"
	OpApprove           Op = "approve"
	OpBurn              Op = "burn"
)

// Staking operations.
const (
	OpDeposit            Op = "deposit"
	OpWithdrawDeposit    Op = "withdraw_deposit"
	OpWithdrawEmergency  Op = "withdraw_emergency"
	OpWithdrawEarnings   Op = "withdraw_earnings"
	OpCompound           Op = "compound"
	OpEnableAnticipation Op = "enable_anticipation"
	OpAnticipate         Op = "anticipate"
	OpEarn               Op = "earn"
)

// Assertions.
const (
	OpObserve Op = "observe"
	OpExpect  Op = "expect"
)

// Quantity names an observable value for observe and expect steps.
type Quantity string

const (
	QuantityTokenBalance     Quantity = "token_balance"
	QuantityNativeBalance    Quantity = "native_balance"
	QuantityPrincipal        Quantity = "principal"
	QuantityLocked           Quantity = "locked"
	QuantityEarnings         Quantity = "earnings"
	QuantityCurrentDeposited Quantity = "current_deposited"
	QuantityAvailable        Quantity = "available"
	QuantityTotalSupply      Quantity = "total_supply"
	QuantityTotalMined       Quantity = "total_mined"
	QuantityPool             Quantity = "pool"
	QuantityShared           Quantity = "shared"
)

// Script is a named sequence of steps.
type Script struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Actors      []string `json:"actors"`
	Steps       []Step   `json:"steps"`
}

// Step is one scripted action. Amount-like fields accept whole-unit
// decimals and variables joined by + and - ("$before+$paid"), or, where
// noted, "all".
type Step struct {
	Op    Op     `json:"op"`
	Actor string `json:"actor,omitempty"`
	Note  string `json:"note,omitempty"`

	// To and Spender name actors or one of the contracts "exchange",
	// "staking" and "developer".
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`

	Amount     string `json:"amount,omitempty"`  // native, for fund and send
	Payment    string `json:"payment,omitempty"` // empty means the current fee where one applies
	Tokens     string `json:"tokens,omitempty"`  // "all" is the actor's token balance
	Anticipate bool   `json:"anticipate,omitempty"`
	Blocks     uint64 `json:"blocks,omitempty"`

	Quantity  Quantity `json:"quantity,omitempty"`
	Equals    string   `json:"equals,omitempty"`
	Tolerance string   `json:"tolerance,omitempty"`

	// As stores the step's resulting amount in a variable.
	As string `json:"as,omitempty"`
	// ExpectError names the error the step must fail with, e.g. "not_eligible".
	ExpectError string `json:"expect_error,omitempty"`
}

// Validate checks structure only; amounts are resolved when the step runs.
func (s *Script) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScript)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidScript, s.Name)
	}
	actors := make(map[string]bool, len(s.Actors))
	for _, a := range s.Actors {
		if a == "" || reservedActor(a) {
			return fmt.Errorf("%w: actor name %q is reserved or empty", ErrInvalidScript, a)
		}
		if actors[a] {
			return fmt.Errorf("%w: duplicate actor %q", ErrInvalidScript, a)
		}
		actors[a] = true
	}
	for i, st := range s.Steps {
		if !knownOp(st.Op) {
			return fmt.Errorf("%w: step %d: unknown op %q", ErrInvalidScript, i, st.Op)
		}
		if st.Actor != "" && !actors[st.Actor] && !reservedActor(st.Actor) {
			return fmt.Errorf("%w: step %d: undeclared actor %q", ErrInvalidScript, i, st.Actor)
		}
		if needsActor(st.Op) && st.Actor == "" {
			return fmt.Errorf("%w: step %d: %s needs an actor", ErrInvalidScript, i, st.Op)
		}
		if (st.Op == OpObserve || st.Op == OpExpect) && st.Quantity == "" {
			return fmt.Errorf("%w: step %d: %s needs a quantity", ErrInvalidScript, i, st.Op)
		}
		if st.Op == OpObserve && st.As == "" {
			return fmt.Errorf("%w: step %d: observe needs a variable", ErrInvalidScript, i)
		}
		if st.ExpectError != "" {
			if _, ok := namedErrors[st.ExpectError]; !ok {
				return fmt.Errorf("%w: step %d: unknown error name %q", ErrInvalidScript, i, st.ExpectError)
			}
		}
	}
	return nil
}

func reservedActor(name string) bool {
	switch name {
	case "exchange", "staking", "developer":
		return true
	}
	return false
}

func knownOp(op Op) bool {
	switch op {
	case OpFund, OpSend, OpAdvance,
		OpEnableMining, OpEnableMiningToken, OpMine, OpSpend, OpSave, OpDonate,
		OpWithdrawShare, OpTransfer, OpApprove, OpBurn,
		OpDeposit, OpWithdrawDeposit, OpWithdrawEmergency, OpWithdrawEarnings,
		OpCompound, OpEnableAnticipation, OpAnticipate, OpEarn,
		OpObserve, OpExpect:
		return true
	}
	return false
}

func needsActor(op Op) bool {
	switch op {
	case OpAdvance, OpObserve, OpExpect:
		return false
	}
	return true
}

// ParseScript decodes and validates an HJSON script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := hjson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScript reads a script file.
func LoadScript(file string) (*Script, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

//go:embed scripts/*.hjson
var builtinFS embed.FS

// Builtin returns the embedded script with the given name.
func Builtin(name string) (*Script, error) {
	data, err := fs.ReadFile(builtinFS, path.Join("scripts", name+".hjson"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, name)
	}
	return ParseScript(data)
}

// BuiltinNames lists the embedded scripts.
func BuiltinNames() []string {
	entries, err := fs.ReadDir(builtinFS, "scripts")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".hjson"))
	}
	sort.Strings(names)
	return names
}
