package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/chain"
	"time-ledger/internal/config"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/orchestrator"
)

func newRunner(t *testing.T) (*Runner, *orchestrator.Node) {
	t.Helper()
	cfg := config.Default()
	cfg.Height.Source = config.HeightManual
	heights := chain.NewManualHeight(1000)

	node, err := orchestrator.Build(context.Background(), orchestrator.Options{Config: cfg, Heights: heights})
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })

	return NewRunner(RunnerOptions{
		Chain:    node.Chain,
		Exchange: node.Exchange,
		Staking:  node.Staking,
		Heights:  heights,
	}), node
}

func TestBuiltinScripts(t *testing.T) {
	names := BuiltinNames()
	require.ElementsMatch(t, []string{"anticipate-all", "anticipation-eligibility", "mine-and-deposit", "reference"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			script, err := Builtin(name)
			require.NoError(t, err)

			runner, _ := newRunner(t)
			res, err := runner.Run(context.Background(), script)
			require.NoError(t, err)
			assert.Len(t, res.Steps, len(script.Steps))
		})
	}
}

func TestMineAndDeposit_Values(t *testing.T) {
	script, err := Builtin("mine-and-deposit")
	require.NoError(t, err)
	runner, node := newRunner(t)

	res, err := runner.Run(context.Background(), script)
	require.NoError(t, err)

	assert.Equal(t, fixedpoint.Tokens(10), res.Vars["mined"])
	pos, err := node.Staking.Position(context.Background(), res.Actors["x"])
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Tokens(10), pos.LockedToken)
}

func TestAnticipationEligibility_RecordsExpectedError(t *testing.T) {
	script, err := Builtin("anticipation-eligibility")
	require.NoError(t, err)
	runner, _ := newRunner(t)

	res, err := runner.Run(context.Background(), script)
	require.NoError(t, err)

	var refused *StepResult
	for i := range res.Steps {
		if res.Steps[i].Op == OpDeposit {
			refused = &res.Steps[i]
		}
	}
	require.NotNil(t, refused)
	assert.True(t, matchesNamed(refused.Err, "not_eligible"))
	assert.Nil(t, refused.Amount)
}

func TestRun_ExpectationFails(t *testing.T) {
	script, err := ParseScript([]byte(`{
		name: wrong
		actors: ["a"]
		steps: [
			{ op: "fund", actor: "a", amount: "1" }
			{ op: "expect", actor: "a", quantity: "native_balance", equals: "2" }
		]
	}`))
	require.NoError(t, err)
	runner, _ := newRunner(t)

	res, err := runner.Run(context.Background(), script)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpectation))
	assert.Len(t, res.Steps, 1)
}

func TestRun_ToleranceAndExpressions(t *testing.T) {
	script, err := ParseScript([]byte(`{
		name: arithmetic
		actors: ["a"]
		steps: [
			{ op: "fund", actor: "a", amount: "1.5", as: "first" }
			{ op: "fund", actor: "a", amount: "$first-0.5", as: "second" }
			{ op: "expect", actor: "a", quantity: "native_balance", equals: "$first + $second" }
			{ op: "expect", actor: "a", quantity: "native_balance", equals: "2.6", tolerance: "0.1" }
		]
	}`))
	require.NoError(t, err)
	runner, _ := newRunner(t)

	res, err := runner.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Tokens(1), res.Vars["second"])
}

func TestRun_UnexpectedPass(t *testing.T) {
	script, err := ParseScript([]byte(`{
		name: passes
		actors: ["a"]
		steps: [
			{ op: "fund", actor: "a", amount: "1", expect_error: "insufficient_funds" }
		]
	}`))
	require.NoError(t, err)
	runner, _ := newRunner(t)

	_, err = runner.Run(context.Background(), script)
	assert.True(t, errors.Is(err, ErrUnexpectedPass))
}

func TestRun_WrongError(t *testing.T) {
	script, err := ParseScript([]byte(`{
		name: wrong-error
		actors: ["a"]
		steps: [
			{ op: "mine", actor: "a", expect_error: "no_deposit" }
		]
	}`))
	require.NoError(t, err)
	runner, _ := newRunner(t)

	_, err = runner.Run(context.Background(), script)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnexpectedPass))
	assert.Contains(t, err.Error(), "expected no_deposit")
}

func TestRun_UndefinedVariable(t *testing.T) {
	script, err := ParseScript([]byte(`{
		name: undefined
		actors: ["a"]
		steps: [{ op: "fund", actor: "a", amount: "$nothing" }]
	}`))
	require.NoError(t, err)
	runner, _ := newRunner(t)

	_, err = runner.Run(context.Background(), script)
	assert.True(t, errors.Is(err, ErrInvalidScript))
}

func TestParseScript_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no name", `{ steps: [{ op: "advance", blocks: 1 }] }`},
		{"no steps", `{ name: "x" }`},
		{"unknown op", `{ name: "x", steps: [{ op: "teleport" }] }`},
		{"undeclared actor", `{ name: "x", steps: [{ op: "mine", actor: "ghost" }] }`},
		{"missing actor", `{ name: "x", steps: [{ op: "mine" }] }`},
		{"reserved actor", `{ name: "x", actors: ["staking"], steps: [{ op: "advance", blocks: 1 }] }`},
		{"duplicate actor", `{ name: "x", actors: ["a", "a"], steps: [{ op: "advance", blocks: 1 }] }`},
		{"observe without variable", `{ name: "x", steps: [{ op: "observe", quantity: "pool" }] }`},
		{"expect without quantity", `{ name: "x", steps: [{ op: "expect", equals: "1" }] }`},
		{"unknown error", `{ name: "x", actors: ["a"], steps: [{ op: "mine", actor: "a", expect_error: "oops" }] }`},
		{"malformed", `{ name: "x", steps: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.doc))
			assert.True(t, errors.Is(err, ErrInvalidScript), "got %v", err)
		})
	}
}

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("missing")
	assert.True(t, errors.Is(err, ErrUnknownScript))
}
