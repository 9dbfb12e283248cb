package chain

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"stakingctl/internal/config"
)

// Clients holds the node and indexer handles for one run.
type Clients struct {
	Node    *AlgodNode
	Indexer *IndexerClient
}

// NewClients builds both clients. Nothing is contacted here; connection
// problems surface on first use.
func NewClients(node, idx config.Endpoint) (*Clients, error) {
	algodClient, err := algod.MakeClient(endpointAddress(node), node.Token)
	if err != nil {
		return nil, fmt.Errorf("algod client: %w", err)
	}
	indexerClient, err := indexer.MakeClient(endpointAddress(idx), idx.Token)
	if err != nil {
		return nil, fmt.Errorf("indexer client: %w", err)
	}
	return &Clients{
		Node:    &AlgodNode{client: algodClient},
		Indexer: &IndexerClient{client: indexerClient},
	}, nil
}

func endpointAddress(e config.Endpoint) string {
	server := strings.TrimRight(e.Server, "/")
	if e.Port == "" {
		return server
	}
	return server + ":" + e.Port
}

// AlgodNode adapts *algod.Client to Node.
type AlgodNode struct {
	client *algod.Client
}

func (n *AlgodNode) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	return n.client.SuggestedParams().Do(ctx)
}

func (n *AlgodNode) SendRawTransactions(ctx context.Context, signed [][]byte) (string, error) {
	return n.client.SendRawTransaction(bytes.Join(signed, nil)).Do(ctx)
}

func (n *AlgodNode) PendingTransaction(ctx context.Context, txid string) (models.PendingTransactionInfoResponse, error) {
	info, _, err := n.client.PendingTransactionInformation(txid).Do(ctx)
	return info, err
}

func (n *AlgodNode) Status(ctx context.Context) (models.NodeStatus, error) {
	return n.client.Status().Do(ctx)
}

func (n *AlgodNode) StatusAfterBlock(ctx context.Context, round uint64) (models.NodeStatus, error) {
	return n.client.StatusAfterBlock(round).Do(ctx)
}

func (n *AlgodNode) Simulate(ctx context.Context, req models.SimulateRequest) (models.SimulateResponse, error) {
	return n.client.SimulateTransaction(req).Do(ctx)
}

func (n *AlgodNode) Compile(ctx context.Context, source []byte) (models.CompileResponse, error) {
	return n.client.TealCompile(source).Do(ctx)
}

// IndexerClient adapts *indexer.Client to Indexer.
type IndexerClient struct {
	client *indexer.Client
}

func (i *IndexerClient) CreatorTransactions(ctx context.Context, creator string, notePrefix []byte) ([]models.Transaction, error) {
	var (
		out  []models.Transaction
		next string
	)
	for {
		resp, err := i.client.SearchForTransactions().
			AddressString(creator).
			AddressRole("sender").
			TxType("appl").
			NotePrefix(notePrefix).
			NextToken(next).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Transactions...)
		if resp.NextToken == "" || len(resp.Transactions) == 0 {
			return out, nil
		}
		next = resp.NextToken
	}
}

func (i *IndexerClient) Application(ctx context.Context, appID uint64) (models.Application, error) {
	resp, err := i.client.LookupApplicationByID(appID).IncludeAll(true).Do(ctx)
	if err != nil {
		return models.Application{}, err
	}
	return resp.Application, nil
}

func (i *IndexerClient) Health(ctx context.Context) error {
	_, err := i.client.HealthCheck().Do(ctx)
	return err
}
