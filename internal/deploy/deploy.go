// Package deploy creates staking contract instances from TEAL templates,
// reusing an existing instance of the same name when the creator already
// has one.
package deploy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/decred/slog"

	"stakingctl/internal/chain"
	"stakingctl/internal/config"
	"stakingctl/internal/identity"
)

// NotePrefix starts the creation note of every app deployed by name.
const NotePrefix = "ALGOKIT_DEPLOYER:j"

const noteVersion = "v1.0"

// Global state: period, funding, total (uint) and owner, funder (bytes).
var globalSchema = types.StateSchema{NumUint: 3, NumByteSlice: 2}

var unresolvedTemplate = regexp.MustCompile(`TMPL_[A-Z0-9_]+`)

// Deployment describes the instance a deploy resolved to.
type Deployment struct {
	AppID          uint64 `json:"appId"`
	Created        bool   `json:"created"`
	TxID           string `json:"txId,omitempty"`
	ConfirmedRound uint64 `json:"confirmedRound,omitempty"`
}

type deployNote struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Updatable *bool  `json:"updatable"`
	Deletable *bool  `json:"deletable"`
}

type Deployer struct {
	node      chain.Node
	indexer   chain.Indexer
	submitter *chain.Submitter
	log       slog.Logger
	readFile  func(string) ([]byte, error)
}

func NewDeployer(node chain.Node, indexer chain.Indexer, submitter *chain.Submitter, log slog.Logger) *Deployer {
	return &Deployer{
		node:      node,
		indexer:   indexer,
		submitter: submitter,
		log:       log,
		readFile:  os.ReadFile,
	}
}

// Deploy returns the creator's live app named p.Name, creating it when
// none exists.
func (d *Deployer) Deploy(ctx context.Context, creator identity.Identity, p config.DeployParams) (Deployment, error) {
	if p.Name == "" {
		return Deployment{}, fmt.Errorf("deploy: app name is empty")
	}
	appID, found, err := d.Resolve(ctx, creator.Address.String(), p.Name)
	if err != nil {
		return Deployment{}, err
	}
	if found {
		d.log.Infof("App %q already deployed by %s: %d", p.Name, creator, appID)
		return Deployment{AppID: appID}, nil
	}

	approval, err := d.compile(ctx, p.ApprovalPath, p)
	if err != nil {
		return Deployment{}, fmt.Errorf("approval program: %w", err)
	}
	clearProg, err := d.compile(ctx, p.ClearPath, p)
	if err != nil {
		return Deployment{}, fmt.Errorf("clear program: %w", err)
	}

	note, err := CreationNote(p.Name)
	if err != nil {
		return Deployment{}, err
	}
	sp, err := d.node.SuggestedParams(ctx)
	if err != nil {
		return Deployment{}, fmt.Errorf("suggested params: %w", err)
	}
	txn, err := createTxn(creator.Address, sp, approval, clearProg, note)
	if err != nil {
		return Deployment{}, fmt.Errorf("create app %q: %w", p.Name, err)
	}
	encoded := base64.StdEncoding.EncodeToString(msgpack.Encode(txn))

	confs, err := d.submitter.SignSendAndConfirm(ctx, []string{encoded}, creator.PrivateKey)
	if err != nil {
		return Deployment{}, fmt.Errorf("create app %q: %w", p.Name, err)
	}
	info, err := d.node.PendingTransaction(ctx, confs[0].TxID)
	if err != nil {
		return Deployment{}, fmt.Errorf("created app index: %w", err)
	}
	if info.ApplicationIndex == 0 {
		return Deployment{}, fmt.Errorf("create app %q: no application index in %s", p.Name, confs[0].TxID)
	}

	d.log.Infof("Created app %q: %d (txn %s, round %d)", p.Name, info.ApplicationIndex, confs[0].TxID, confs[0].ConfirmedRound)
	return Deployment{
		AppID:          info.ApplicationIndex,
		Created:        true,
		TxID:           confs[0].TxID,
		ConfirmedRound: confs[0].ConfirmedRound,
	}, nil
}

// Resolve finds the latest app created by creator under name. Deleted
// apps do not count.
func (d *Deployer) Resolve(ctx context.Context, creator, name string) (uint64, bool, error) {
	txns, err := d.indexer.CreatorTransactions(ctx, creator, []byte(NotePrefix))
	if err != nil {
		return 0, false, fmt.Errorf("search creator transactions: %w", err)
	}

	var latest *models.Transaction
	for i := range txns {
		txn := &txns[i]
		if txn.CreatedApplicationIndex == 0 || noteName(txn.Note) != name {
			continue
		}
		if latest == nil || txn.ConfirmedRound > latest.ConfirmedRound {
			latest = txn
		}
	}
	if latest == nil {
		return 0, false, nil
	}

	app, err := d.indexer.Application(ctx, latest.CreatedApplicationIndex)
	if err != nil {
		return 0, false, fmt.Errorf("lookup app %d: %w", latest.CreatedApplicationIndex, err)
	}
	if app.Deleted {
		d.log.Debugf("App %q (%d) was deleted", name, latest.CreatedApplicationIndex)
		return 0, false, nil
	}
	return latest.CreatedApplicationIndex, true, nil
}

// CreationNote is the note attached to the app-create transaction.
func CreationNote(name string) ([]byte, error) {
	blob, err := json.Marshal(deployNote{Name: name, Version: noteVersion})
	if err != nil {
		return nil, err
	}
	return append([]byte(NotePrefix), blob...), nil
}

func noteName(note []byte) string {
	if !bytes.HasPrefix(note, []byte(NotePrefix)) {
		return ""
	}
	var n deployNote
	if err := json.Unmarshal(note[len(NotePrefix):], &n); err != nil {
		return ""
	}
	return n.Name
}

// Substitute fills the deploy-time template variables of a TEAL source.
func Substitute(source string, p config.DeployParams) (string, error) {
	out := strings.NewReplacer(
		"TMPL_PERIOD_SECONDS", strconv.FormatUint(p.PeriodSeconds, 10),
		"TMPL_VESTING_DELAY", strconv.FormatUint(p.VestingDelay, 10),
		"TMPL_LOCKUP_DELAY", strconv.FormatUint(p.LockupDelay, 10),
	).Replace(source)
	if name := unresolvedTemplate.FindString(out); name != "" {
		return "", fmt.Errorf("unresolved template variable %s", name)
	}
	return out, nil
}

func (d *Deployer) compile(ctx context.Context, path string, p config.DeployParams) ([]byte, error) {
	raw, err := d.readFile(path)
	if err != nil {
		return nil, err
	}
	source, err := Substitute(string(raw), p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	resp, err := d.node.Compile(ctx, []byte(source))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	program, err := base64.StdEncoding.DecodeString(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode compiled %s: %w", path, err)
	}
	d.log.Debugf("Compiled %s (%d bytes, hash %s)", path, len(program), resp.Hash)
	return program, nil
}

func createTxn(sender types.Address, sp types.SuggestedParams, approval, clearProg, note []byte) (types.Transaction, error) {
	fee := sp.MinFee
	if fee < transaction.MinTxnFee {
		fee = transaction.MinTxnFee
	}
	sp.Fee = types.MicroAlgos(fee)
	sp.FlatFee = true
	return transaction.MakeApplicationCreateTx(false, approval, clearProg, globalSchema, types.StateSchema{},
		nil, nil, nil, nil, sp, sender, note, types.Digest{}, [32]byte{}, types.Address{})
}
