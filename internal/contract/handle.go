package contract

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"stakingctl/internal/chain"
)

const minFee = 1000

var ErrInvalidArgs = errors.New("invalid method arguments")

// returnPrefix marks the ARC-4 return value log line. The composer keeps
// its copy unexported and only decodes returns through an algod client.
var returnPrefix = []byte{0x15, 0x1f, 0x7c, 0x75}

// CallOptions configures a single call. The zero value is a plain NoOp call
// with the suggested fee and no payment.
type CallOptions struct {
	// Payment, when non-zero, prepends a payment of this many microalgos
	// from the caller to the application account.
	Payment uint64
	// Fee overrides the application call fee (flat).
	Fee        uint64
	OnComplete types.OnCompletion
	// Accounts are extra account references for inner transactions.
	Accounts []types.Address
}

// Result is the outcome of a call: the unsigned transaction set (base64
// msgpack, group order) and, for simulated calls, the decoded return value.
type Result struct {
	Txns        []string    `json:"txns,omitempty"`
	Success     bool        `json:"success"`
	ReturnValue interface{} `json:"returnValue,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// Handle is a caller-bound proxy over one deployed application. It holds
// no per-call state, so it can be shared.
type Handle struct {
	node   chain.Node
	spec   *Spec
	appID  uint64
	sender types.Address
}

// New returns a handle for the staking contract at appID acting as sender.
func New(node chain.Node, appID uint64, sender types.Address) *Handle {
	return NewWithSpec(node, StakingSpec(), appID, sender)
}

func NewWithSpec(node chain.Node, spec *Spec, appID uint64, sender types.Address) *Handle {
	return &Handle{node: node, spec: spec, appID: appID, sender: sender}
}

func (h *Handle) AppID() uint64 { return h.appID }

func (h *Handle) Sender() types.Address { return h.sender }

// AppAddress is the account controlled by the application.
func (h *Handle) AppAddress() types.Address {
	return crypto.GetApplicationAddress(h.appID)
}

// Call builds the transaction set for method. Methods that return a value
// are simulated first; a failed simulation returns Success=false and no
// transactions.
func (h *Handle) Call(ctx context.Context, name string, opts CallOptions, args ...interface{}) (Result, error) {
	method, txns, err := h.build(ctx, name, opts, args)
	if err != nil {
		return Result{}, err
	}
	if method.Returns.IsVoid() {
		return Result{Txns: encodeAll(txns), Success: true}, nil
	}

	res, err := h.simulate(ctx, method, txns)
	if err != nil || !res.Success {
		return res, err
	}
	res.Txns = encodeAll(txns)
	return res, nil
}

// Simulate evaluates method against the node without producing a
// transaction set.
func (h *Handle) Simulate(ctx context.Context, name string, opts CallOptions, args ...interface{}) (Result, error) {
	method, txns, err := h.build(ctx, name, opts, args)
	if err != nil {
		return Result{}, err
	}
	return h.simulate(ctx, method, txns)
}

func (h *Handle) build(ctx context.Context, name string, opts CallOptions, args []interface{}) (abi.Method, []types.Transaction, error) {
	method, ok := h.spec.Method(name)
	if !ok {
		return abi.Method{}, nil, fmt.Errorf("%w: unknown method %q", ErrInvalidArgs, name)
	}
	if len(args) != len(method.Args) {
		return abi.Method{}, nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrInvalidArgs, method.Name, len(method.Args), len(args))
	}

	sp, err := h.node.SuggestedParams(ctx)
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("suggested params: %w", err)
	}

	// Transactions are signed later by the submitter, so the composer
	// only groups them.
	var atc transaction.AtomicTransactionComposer
	signer := transaction.EmptyTransactionSigner{}
	if opts.Payment > 0 {
		pay, err := transaction.MakePaymentTxn(h.sender.String(), h.AppAddress().String(), opts.Payment, nil, "", sp)
		if err != nil {
			return abi.Method{}, nil, fmt.Errorf("payment txn: %w", err)
		}
		if err := atc.AddTransaction(transaction.TransactionWithSigner{Txn: pay, Signer: signer}); err != nil {
			return abi.Method{}, nil, fmt.Errorf("payment txn: %w", err)
		}
	}

	callParams := sp
	callParams.Fee = types.MicroAlgos(callFee(sp, opts.Fee))
	callParams.FlatFee = true
	accounts := make([]string, len(opts.Accounts))
	for i, a := range opts.Accounts {
		accounts[i] = a.String()
	}
	err = atc.AddMethodCall(transaction.AddMethodCallParams{
		AppID:           h.appID,
		Method:          method,
		MethodArgs:      args,
		Sender:          h.sender,
		SuggestedParams: callParams,
		OnComplete:      opts.OnComplete,
		Signer:          signer,
		ForeignAccounts: accounts,
	})
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, method.Name, err)
	}

	group, err := atc.BuildGroup()
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("group: %w", err)
	}
	txns := make([]types.Transaction, len(group))
	for i, tws := range group {
		txns[i] = tws.Txn
	}
	return method, txns, nil
}

func callFee(sp types.SuggestedParams, override uint64) uint64 {
	if override > 0 {
		return override
	}
	if sp.FlatFee && uint64(sp.Fee) > minFee {
		return uint64(sp.Fee)
	}
	if sp.MinFee > minFee {
		return sp.MinFee
	}
	return minFee
}

func (h *Handle) simulate(ctx context.Context, method abi.Method, txns []types.Transaction) (Result, error) {
	group := models.SimulateRequestTransactionGroup{Txns: make([]types.SignedTxn, len(txns))}
	for i, txn := range txns {
		group.Txns[i] = types.SignedTxn{Txn: txn}
	}
	resp, err := h.node.Simulate(ctx, models.SimulateRequest{
		TxnGroups:             []models.SimulateRequestTransactionGroup{group},
		AllowEmptySignatures:  true,
		AllowUnnamedResources: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("simulate %s: %w", method.Name, err)
	}
	if len(resp.TxnGroups) == 0 {
		return Result{Message: "empty simulation response"}, nil
	}

	result := resp.TxnGroups[0]
	if result.FailureMessage != "" {
		return Result{Message: result.FailureMessage}, nil
	}
	if method.Returns.IsVoid() {
		return Result{Success: true}, nil
	}
	if len(result.TxnResults) == 0 {
		return Result{Message: "no transaction results"}, nil
	}

	logs := result.TxnResults[len(result.TxnResults)-1].TxnResult.Logs
	value, err := decodeReturn(method, logs)
	if err != nil {
		return Result{Message: err.Error()}, nil
	}
	return Result{Success: true, ReturnValue: value}, nil
}

func decodeReturn(method abi.Method, logs [][]byte) (interface{}, error) {
	if len(logs) == 0 {
		return nil, errors.New("no return value logged")
	}
	last := logs[len(logs)-1]
	if !bytes.HasPrefix(last, returnPrefix) {
		return nil, errors.New("last log is not a return value")
	}
	returns := method.Returns
	typ, err := returns.GetTypeObject()
	if err != nil {
		return nil, err
	}
	return typ.Decode(last[len(returnPrefix):])
}

func encodeAll(txns []types.Transaction) []string {
	out := make([]string, len(txns))
	for i, txn := range txns {
		out[i] = base64.StdEncoding.EncodeToString(msgpack.Encode(txn))
	}
	return out
}
