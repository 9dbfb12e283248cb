package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// ConfirmationRounds bounds how many rounds a submitted transaction may
// stay unconfirmed.
const ConfirmationRounds = 4

var (
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrTransactionRejected = errors.New("transaction rejected")
)

// Confirmation reports where a transaction landed.
type Confirmation struct {
	TxID           string `json:"txId"`
	ConfirmedRound uint64 `json:"confirmedRound"`
}

// SignedTxn is one signed blob of a transaction set.
type SignedTxn struct {
	TxID string
	Blob []byte
}

// Submitter signs, broadcasts and confirms transaction sets.
type Submitter struct {
	node       Node
	log        slog.Logger
	observer   Observer
	waitRounds uint64
}

func NewSubmitter(node Node, log slog.Logger, obs Observer) *Submitter {
	if obs == nil {
		obs = noopObserver{}
	}
	return &Submitter{
		node:       node,
		log:        log,
		observer:   obs,
		waitRounds: ConfirmationRounds,
	}
}

// SignAll decodes base64 unsigned transactions and signs each with sk,
// preserving order.
func SignAll(txns []string, sk ed25519.PrivateKey) ([]SignedTxn, error) {
	out := make([]SignedTxn, 0, len(txns))
	for i, encoded := range txns {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode txn %d: %w", i, err)
		}
		var txn types.Transaction
		if err := msgpack.Decode(raw, &txn); err != nil {
			return nil, fmt.Errorf("parse txn %d: %w", i, err)
		}
		txid, blob, err := crypto.SignTransaction(sk, txn)
		if err != nil {
			return nil, fmt.Errorf("sign txn %d: %w", i, err)
		}
		out = append(out, SignedTxn{TxID: txid, Blob: blob})
	}
	return out, nil
}

// SignSendAndConfirm signs the set, broadcasts it as one batch and waits for
// every transaction concurrently. A broadcast rejection is returned as is
// and yields no confirmations. Confirmations are in input order and always
// carry the txid; ConfirmedRound stays 0 for a transaction that did not
// confirm.
func (s *Submitter) SignSendAndConfirm(ctx context.Context, txns []string, sk ed25519.PrivateKey) ([]Confirmation, error) {
	if len(txns) == 0 {
		return nil, errors.New("empty transaction set")
	}
	signed, err := SignAll(txns, sk)
	if err != nil {
		s.observer.TxFailed("sign")
		return nil, err
	}

	ids := make([]string, len(signed))
	blobs := make([][]byte, len(signed))
	for i, stx := range signed {
		ids[i] = stx.TxID
		blobs[i] = stx.Blob
	}
	s.log.Infof("Signed %d txn(s): %v", len(ids), ids)

	if _, err := s.node.SendRawTransactions(ctx, blobs); err != nil {
		s.observer.TxFailed("broadcast")
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	s.observer.TxSubmitted(len(blobs))

	confirmations := make([]Confirmation, len(ids))
	for i, txid := range ids {
		confirmations[i] = Confirmation{TxID: txid}
	}
	var g errgroup.Group
	for i, txid := range ids {
		i, txid := i, txid
		g.Go(func() error {
			c, err := s.waitFor(ctx, txid)
			if err != nil {
				return err
			}
			confirmations[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return confirmations, err
	}
	return confirmations, nil
}

func (s *Submitter) waitFor(ctx context.Context, txid string) (Confirmation, error) {
	c, start, err := WaitForConfirmation(ctx, s.node, txid, s.waitRounds)
	if err != nil {
		switch {
		case errors.Is(err, ErrConfirmationTimeout):
			s.observer.TxFailed("timeout")
		case errors.Is(err, ErrTransactionRejected):
			s.observer.TxFailed("rejected")
		default:
			s.observer.TxFailed("wait")
		}
		return c, err
	}
	var waited uint64
	if c.ConfirmedRound > start {
		waited = c.ConfirmedRound - start
	}
	s.observer.TxConfirmed(waited)
	s.log.Debugf("Confirmed %s in round %d", c.TxID, c.ConfirmedRound)
	return c, nil
}

// WaitForConfirmation polls the pending pool for txid, advancing one round
// at a time, for at most waitRounds rounds. It also returns the round the
// wait started from.
func WaitForConfirmation(ctx context.Context, node Node, txid string, waitRounds uint64) (Confirmation, uint64, error) {
	status, err := node.Status(ctx)
	if err != nil {
		return Confirmation{}, 0, fmt.Errorf("status: %w", err)
	}

	var lastErr error
	start := status.LastRound
	for round := start; round < start+waitRounds; round++ {
		if err := ctx.Err(); err != nil {
			return Confirmation{}, start, err
		}
		info, err := node.PendingTransaction(ctx, txid)
		if err == nil {
			if info.ConfirmedRound > 0 {
				return Confirmation{TxID: txid, ConfirmedRound: info.ConfirmedRound}, start, nil
			}
			if info.PoolError != "" {
				return Confirmation{}, start, fmt.Errorf("%w: %s: %s", ErrTransactionRejected, txid, info.PoolError)
			}
		} else {
			lastErr = err
		}
		if _, err := node.StatusAfterBlock(ctx, round); err != nil {
			return Confirmation{}, start, fmt.Errorf("status after block %d: %w", round, err)
		}
	}
	if lastErr != nil {
		return Confirmation{}, start, fmt.Errorf("%w: %s not confirmed after %d rounds (last error: %v)", ErrConfirmationTimeout, txid, waitRounds, lastErr)
	}
	return Confirmation{}, start, fmt.Errorf("%w: %s not confirmed after %d rounds", ErrConfirmationTimeout, txid, waitRounds)
}
