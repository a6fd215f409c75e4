// =============================
// File: internal/pipeline/state.go
// =============================
package pipeline

import (
	"math/big"
	"time"

	"github.com/rovshanmuradov/pharos-bot/internal/transaction"
)

// State is a pipeline stage. Done and Aborted are terminal.
type State string

const (
	StateInit            State = "init"
	StateLoggingIn       State = "logging_in"
	StateClaimingFaucet  State = "claiming_faucet"
	StateIterating       State = "iterating"
	StateAddingLiquidity State = "adding_liquidity"
	StateDone            State = "done"
	StateAborted         State = "aborted"
)

// Terminal reports whether no further steps follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Step statuses that are not transaction outcomes.
const (
	StatusOK          = "ok"
	StatusSkipped     = "skipped"
	StatusFailed      = "failed"
	StatusAlreadyDone = "already_done"
)

// Step names.
const (
	StepInit        = "init"
	StepLogin       = "login"
	StepSignIn      = "sign_in"
	StepFaucet      = "faucet"
	StepBalances    = "balances"
	StepLiqWrap     = "liquidity_wrap"
	StepLiqSwap     = "liquidity_swap"
	StepLiqApprove0 = "liquidity_approve_token0"
	StepLiqApprove1 = "liquidity_approve_token1"
	StepLiqIncrease = "liquidity_increase"
	StepSwapApprove = "swap_back_approve"
)

// StepResult records one executed (or skipped) step.
type StepResult struct {
	Step      string
	Iteration int
	Status    string
	TxHash    string
	Detail    string
	Err       error
	At        time.Time
}

// Failed reports whether the step did not achieve its effect.
func (r StepResult) Failed() bool {
	return r.Status != StatusOK && r.Status != StatusSkipped &&
		r.Status != StatusAlreadyDone && r.Status != transaction.StatusConfirmed.String()
}

// Run is the per-account state owned by one worker for one sweep.
type Run struct {
	Index         int
	Address       string
	State         State
	Iteration     int
	NativeBalance *big.Int
	TokenBalance  *big.Int
	Steps         []StepResult
	LastOutcome   map[string]string
	StartedAt     time.Time
	FinishedAt    time.Time
	Err           error
}

func newRun(index int) *Run {
	return &Run{
		Index:       index,
		State:       StateInit,
		LastOutcome: make(map[string]string),
		StartedAt:   time.Now(),
	}
}

// Failures counts failed steps.
func (r *Run) Failures() int {
	n := 0
	for _, s := range r.Steps {
		if s.Failed() {
			n++
		}
	}
	return n
}
