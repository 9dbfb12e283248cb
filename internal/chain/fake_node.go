package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// FakeNode is an in-memory ledger used by tests. It checks signatures like
// a real node, rejects whole batches, and confirms a transaction
// ConfirmAfter rounds after it was accepted.
type FakeNode struct {
	mu sync.Mutex

	Round        uint64
	ConfirmAfter uint64
	Params       types.SuggestedParams
	// Stalled txids are accepted but never confirm. StallAll stalls every
	// transaction.
	Stalled  map[string]bool
	StallAll bool
	// AuthAddrs maps rekeyed senders to the account allowed to sign for
	// them.
	AuthAddrs map[types.Address]types.Address
	// PoolErrors maps txids to a pool error reported while pending.
	PoolErrors   map[string]string
	SendErr      error
	SimulateFunc func(models.SimulateRequest) (models.SimulateResponse, error)
	CompileFunc  func(source []byte) (models.CompileResponse, error)

	// NextAppID is assigned to the next application created.
	NextAppID uint64

	Batches   [][]types.SignedTxn
	Simulated []models.SimulateRequest
	accepted  map[string]uint64
	created   map[string]uint64
}

func NewFakeNode() *FakeNode {
	return &FakeNode{
		Round:        1000,
		ConfirmAfter: 1,
		Params: types.SuggestedParams{
			Fee:             0,
			MinFee:          1000,
			FirstRoundValid: 1000,
			LastRoundValid:  2000,
			GenesisID:       "voitest-v1",
			GenesisHash:     make([]byte, 32),
		},
		Stalled:    make(map[string]bool),
		AuthAddrs:  make(map[types.Address]types.Address),
		PoolErrors: make(map[string]string),
		NextAppID:  50_000_000,
		accepted:   make(map[string]uint64),
		created:    make(map[string]uint64),
	}
}

func (f *FakeNode) SuggestedParams(context.Context) (types.SuggestedParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Params, nil
}

func (f *FakeNode) SendRawTransactions(_ context.Context, signed [][]byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}

	batch := make([]types.SignedTxn, 0, len(signed))
	for i, blob := range signed {
		var stx types.SignedTxn
		if err := msgpack.Decode(blob, &stx); err != nil {
			return "", fmt.Errorf("txn %d: malformed: %w", i, err)
		}
		if !f.verifySignature(stx) {
			return "", fmt.Errorf("txn %d: %w: invalid signature for sender %s", i, ErrTransactionRejected, stx.Txn.Sender)
		}
		batch = append(batch, stx)
	}

	for _, stx := range batch {
		txid := crypto.GetTxID(stx.Txn)
		f.accepted[txid] = f.Round
		if stx.Txn.Type == types.ApplicationCallTx && stx.Txn.ApplicationID == 0 {
			f.created[txid] = f.NextAppID
			f.NextAppID++
		}
	}
	f.Batches = append(f.Batches, batch)
	return crypto.GetTxID(batch[0].Txn), nil
}

func (f *FakeNode) PendingTransaction(_ context.Context, txid string) (models.PendingTransactionInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.accepted[txid]
	if !ok {
		return models.PendingTransactionInfoResponse{}, errors.New("txn not found")
	}
	if msg, ok := f.PoolErrors[txid]; ok {
		return models.PendingTransactionInfoResponse{PoolError: msg}, nil
	}
	if f.StallAll || f.Stalled[txid] {
		return models.PendingTransactionInfoResponse{}, nil
	}
	target := at + f.ConfirmAfter
	if f.Round < target {
		return models.PendingTransactionInfoResponse{}, nil
	}
	return models.PendingTransactionInfoResponse{
		ConfirmedRound:   target,
		ApplicationIndex: f.created[txid],
	}, nil
}

func (f *FakeNode) Status(context.Context) (models.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.NodeStatus{LastRound: f.Round}, nil
}

func (f *FakeNode) StatusAfterBlock(_ context.Context, round uint64) (models.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Round <= round {
		f.Round = round + 1
	}
	return models.NodeStatus{LastRound: f.Round}, nil
}

func (f *FakeNode) Simulate(_ context.Context, req models.SimulateRequest) (models.SimulateResponse, error) {
	f.mu.Lock()
	f.Simulated = append(f.Simulated, req)
	fn := f.SimulateFunc
	round := f.Round
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	resp := models.SimulateResponse{LastRound: round}
	for _, g := range req.TxnGroups {
		group := models.SimulateTransactionGroupResult{
			TxnResults: make([]models.SimulateTransactionResult, len(g.Txns)),
		}
		resp.TxnGroups = append(resp.TxnGroups, group)
	}
	return resp, nil
}

func (f *FakeNode) Compile(_ context.Context, source []byte) (models.CompileResponse, error) {
	if f.CompileFunc != nil {
		return f.CompileFunc(source)
	}
	sum := sha512.Sum512_256(source)
	return models.CompileResponse{
		Hash:   base64.StdEncoding.EncodeToString(sum[:]),
		Result: base64.StdEncoding.EncodeToString(source),
	}, nil
}

// Accepted reports the round a txid was accepted in.
func (f *FakeNode) Accepted(txid string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	round, ok := f.accepted[txid]
	return round, ok
}

// verifySignature accepts a signature by the sender, or by the
// authorized account when the sender has been rekeyed to it.
func (f *FakeNode) verifySignature(stx types.SignedTxn) bool {
	signer := stx.Txn.Sender
	if !stx.AuthAddr.IsZero() && stx.AuthAddr != stx.Txn.Sender {
		if f.AuthAddrs[stx.Txn.Sender] != stx.AuthAddr {
			return false
		}
		signer = stx.AuthAddr
	}
	msg := append([]byte("TX"), msgpack.Encode(stx.Txn)...)
	return ed25519.Verify(ed25519.PublicKey(signer[:]), msg, stx.Sig[:])
}

// FakeIndexer serves canned indexer answers.
type FakeIndexer struct {
	Transactions []models.Transaction
	Applications map[uint64]models.Application
	Err          error
}

func (f *FakeIndexer) CreatorTransactions(_ context.Context, creator string, notePrefix []byte) ([]models.Transaction, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Transaction
	for _, txn := range f.Transactions {
		if txn.Sender != creator {
			continue
		}
		if !bytes.HasPrefix(txn.Note, notePrefix) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (f *FakeIndexer) Application(_ context.Context, appID uint64) (models.Application, error) {
	if f.Err != nil {
		return models.Application{}, f.Err
	}
	app, ok := f.Applications[appID]
	if !ok {
		return models.Application{}, fmt.Errorf("application %d not found", appID)
	}
	return app, nil
}

func (f *FakeIndexer) Health(context.Context) error {
	return f.Err
}
