package contract

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// ParticipationKeys is the argument set of participate. Zero-length keys
// and zero rounds register the contract account offline.
type ParticipationKeys struct {
	VoteKey       []byte
	SelectionKey  []byte
	VoteFirst     uint64
	VoteLast      uint64
	KeyDilution   uint64
	StateProofKey []byte
}

// OfflineKeys returns the zeroed registration that takes the account
// offline.
func OfflineKeys() ParticipationKeys {
	return ParticipationKeys{
		VoteKey:       make([]byte, 32),
		SelectionKey:  make([]byte, 32),
		StateProofKey: make([]byte, 64),
	}
}

func (h *Handle) Setup(ctx context.Context, opts CallOptions, owner types.Address) (Result, error) {
	return h.Call(ctx, MethodSetup, opts, owner[:])
}

func (h *Handle) Configure(ctx context.Context, opts CallOptions, period uint64) (Result, error) {
	return h.Call(ctx, MethodConfigure, opts, period)
}

func (h *Handle) Fill(ctx context.Context, opts CallOptions, total, funding uint64) (Result, error) {
	return h.Call(ctx, MethodFill, opts, total, funding)
}

func (h *Handle) Participate(ctx context.Context, opts CallOptions, keys ParticipationKeys) (Result, error) {
	return h.Call(ctx, MethodParticipate, opts,
		keys.VoteKey,
		keys.SelectionKey,
		keys.VoteFirst,
		keys.VoteLast,
		keys.KeyDilution,
		keys.StateProofKey,
	)
}

func (h *Handle) Withdraw(ctx context.Context, opts CallOptions, amount uint64) (Result, error) {
	return h.Call(ctx, MethodWithdraw, opts, amount)
}

// SimulateWithdraw reports the minimum allowable balance without producing
// a transaction set.
func (h *Handle) SimulateWithdraw(ctx context.Context, opts CallOptions, amount uint64) (Result, error) {
	return h.Simulate(ctx, MethodWithdraw, opts, amount)
}

func (h *Handle) Transfer(ctx context.Context, opts CallOptions, newOwner types.Address) (Result, error) {
	return h.Call(ctx, MethodTransfer, opts, newOwner[:])
}

func (h *Handle) Close(ctx context.Context, opts CallOptions) (Result, error) {
	return h.Call(ctx, MethodClose, opts)
}
