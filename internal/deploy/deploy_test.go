package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakingctl/internal/chain"
	"stakingctl/internal/config"
	"stakingctl/internal/identity"
)

const approvalTEAL = `#pragma version 10
int TMPL_PERIOD_SECONDS
int TMPL_VESTING_DELAY
int TMPL_LOCKUP_DELAY
`

func newCreator() identity.Identity {
	acct := crypto.GenerateAccount()
	return identity.Identity{Address: acct.Address, PrivateKey: acct.PrivateKey}
}

func writeArtifacts(t *testing.T) config.DeployParams {
	t.Helper()
	dir := t.TempDir()
	approval := filepath.Join(dir, "approval.teal")
	clearPath := filepath.Join(dir, "clear.teal")
	require.NoError(t, os.WriteFile(approval, []byte(approvalTEAL), 0o600))
	require.NoError(t, os.WriteFile(clearPath, []byte("#pragma version 10\nint 1\n"), 0o600))
	return config.DeployParams{
		Name:          "20",
		PeriodSeconds: 30,
		VestingDelay:  12,
		LockupDelay:   12,
		ApprovalPath:  approval,
		ClearPath:     clearPath,
	}
}

func newDeployer(node chain.Node, idx chain.Indexer) *Deployer {
	return NewDeployer(node, idx, chain.NewSubmitter(node, slog.Disabled, nil), slog.Disabled)
}

func creationTxn(t *testing.T, sender string, name string, appID, round uint64) models.Transaction {
	t.Helper()
	note, err := CreationNote(name)
	require.NoError(t, err)
	return models.Transaction{
		Sender:                  sender,
		Note:                    note,
		CreatedApplicationIndex: appID,
		ConfirmedRound:          round,
	}
}

func TestSubstitute(t *testing.T) {
	out, err := Substitute(approvalTEAL, config.DeployParams{PeriodSeconds: 30, VestingDelay: 12, LockupDelay: 6})
	require.NoError(t, err)
	assert.Equal(t, "#pragma version 10\nint 30\nint 12\nint 6\n", out)

	_, err = Substitute("int TMPL_UNKNOWN\n", config.DeployParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TMPL_UNKNOWN")
}

func TestCreationNote(t *testing.T) {
	note, err := CreationNote("20")
	require.NoError(t, err)
	assert.Equal(t, `ALGOKIT_DEPLOYER:j{"name":"20","version":"v1.0","updatable":null,"deletable":null}`, string(note))
	assert.Equal(t, "20", noteName(note))
	assert.Equal(t, "", noteName([]byte("hello")))
	assert.Equal(t, "", noteName([]byte(NotePrefix+"{broken")))
}

func TestDeployCreatesApp(t *testing.T) {
	node := chain.NewFakeNode()
	creator := newCreator()
	p := writeArtifacts(t)

	dep, err := newDeployer(node, &chain.FakeIndexer{}).Deploy(context.Background(), creator, p)
	require.NoError(t, err)
	assert.True(t, dep.Created)
	assert.Equal(t, uint64(50_000_000), dep.AppID)
	assert.NotEmpty(t, dep.TxID)
	assert.GreaterOrEqual(t, dep.ConfirmedRound, uint64(1000))

	require.Len(t, node.Batches, 1)
	txn := node.Batches[0][0].Txn
	assert.Equal(t, types.ApplicationCallTx, txn.Type)
	assert.Equal(t, types.AppIndex(0), txn.ApplicationID)
	assert.Equal(t, creator.Address, txn.Sender)
	assert.Equal(t, "#pragma version 10\nint 30\nint 12\nint 12\n", string(txn.ApprovalProgram))
	assert.Equal(t, globalSchema, txn.GlobalStateSchema)
	assert.Equal(t, types.StateSchema{}, txn.LocalStateSchema)
	assert.Equal(t, types.NoOpOC, txn.OnCompletion)
	assert.Equal(t, types.MicroAlgos(1000), txn.Fee)
	assert.Equal(t, types.Round(1000), txn.FirstValid)
	assert.Equal(t, "voitest-v1", txn.GenesisID)
	assert.Equal(t, "20", noteName(txn.Note))
}

func TestCreateTxnUsesMinFee(t *testing.T) {
	creator := newCreator()
	sp := chain.NewFakeNode().Params
	sp.MinFee = 2500

	txn, err := createTxn(creator.Address, sp, []byte{0x0a}, []byte{0x0a}, []byte("note"))
	require.NoError(t, err)
	assert.Equal(t, types.MicroAlgos(2500), txn.Fee)
	assert.Equal(t, []byte("note"), txn.Note)
	assert.Equal(t, types.Digest{}, txn.Group)
}

func TestDeployReusesExistingApp(t *testing.T) {
	node := chain.NewFakeNode()
	creator := newCreator()
	addr := creator.Address.String()
	idx := &chain.FakeIndexer{
		Transactions: []models.Transaction{
			creationTxn(t, addr, "20", 111, 10),
			creationTxn(t, addr, "20", 222, 20),
			creationTxn(t, addr, "other", 333, 30),
		},
		Applications: map[uint64]models.Application{
			111: {Id: 111},
			222: {Id: 222},
			333: {Id: 333},
		},
	}

	dep, err := newDeployer(node, idx).Deploy(context.Background(), creator, writeArtifacts(t))
	require.NoError(t, err)
	assert.False(t, dep.Created)
	assert.Equal(t, uint64(222), dep.AppID)
	assert.Empty(t, node.Batches)
}

func TestDeployIgnoresOtherCreators(t *testing.T) {
	node := chain.NewFakeNode()
	creator := newCreator()
	idx := &chain.FakeIndexer{
		Transactions: []models.Transaction{creationTxn(t, newCreator().Address.String(), "20", 111, 10)},
		Applications: map[uint64]models.Application{111: {Id: 111}},
	}

	dep, err := newDeployer(node, idx).Deploy(context.Background(), creator, writeArtifacts(t))
	require.NoError(t, err)
	assert.True(t, dep.Created)
}

func TestDeployRecreatesDeletedApp(t *testing.T) {
	node := chain.NewFakeNode()
	creator := newCreator()
	idx := &chain.FakeIndexer{
		Transactions: []models.Transaction{creationTxn(t, creator.Address.String(), "20", 111, 10)},
		Applications: map[uint64]models.Application{111: {Id: 111, Deleted: true}},
	}

	dep, err := newDeployer(node, idx).Deploy(context.Background(), creator, writeArtifacts(t))
	require.NoError(t, err)
	assert.True(t, dep.Created)
	assert.Len(t, node.Batches, 1)
}

func TestDeployIndexerError(t *testing.T) {
	node := chain.NewFakeNode()
	idx := &chain.FakeIndexer{Err: errors.New("indexer down")}

	_, err := newDeployer(node, idx).Deploy(context.Background(), newCreator(), writeArtifacts(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer down")
	assert.Empty(t, node.Batches)
}

func TestDeployMissingArtifact(t *testing.T) {
	p := writeArtifacts(t)
	p.ApprovalPath = filepath.Join(t.TempDir(), "missing.teal")

	_, err := newDeployer(chain.NewFakeNode(), &chain.FakeIndexer{}).Deploy(context.Background(), newCreator(), p)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeployRequiresName(t *testing.T) {
	p := writeArtifacts(t)
	p.Name = ""
	_, err := newDeployer(chain.NewFakeNode(), &chain.FakeIndexer{}).Deploy(context.Background(), newCreator(), p)
	require.Error(t, err)
}
