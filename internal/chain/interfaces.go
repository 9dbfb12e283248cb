package chain

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Node abstracts the transaction-submission endpoint. AlgodNode is the
// production implementation, FakeNode the in-memory one used by tests.
type Node interface {
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)
	// SendRawTransactions broadcasts signed transactions as one batch.
	SendRawTransactions(ctx context.Context, signed [][]byte) (string, error)
	PendingTransaction(ctx context.Context, txid string) (models.PendingTransactionInfoResponse, error)
	Status(ctx context.Context) (models.NodeStatus, error)
	StatusAfterBlock(ctx context.Context, round uint64) (models.NodeStatus, error)
	Simulate(ctx context.Context, req models.SimulateRequest) (models.SimulateResponse, error)
	Compile(ctx context.Context, source []byte) (models.CompileResponse, error)
}

// Indexer abstracts the historical query endpoint.
type Indexer interface {
	// CreatorTransactions lists application-call transactions sent by
	// creator whose note starts with notePrefix.
	CreatorTransactions(ctx context.Context, creator string, notePrefix []byte) ([]models.Transaction, error)
	Application(ctx context.Context, appID uint64) (models.Application, error)
	Health(ctx context.Context) error
}

// Observer receives submission events. metrics.Registry implements it.
type Observer interface {
	TxSubmitted(n int)
	TxConfirmed(rounds uint64)
	TxFailed(reason string)
}

type noopObserver struct{}

func (noopObserver) TxSubmitted(int)    {}
func (noopObserver) TxConfirmed(uint64) {}
func (noopObserver) TxFailed(string)    {}
