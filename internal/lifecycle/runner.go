// Package lifecycle drives a staking contract through its lifecycle
// stages: each selected stage builds its call, commits it when it writes,
// and records the outcome.
package lifecycle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/decred/slog"

	"stakingctl/internal/chain"
	"stakingctl/internal/config"
	"stakingctl/internal/contract"
	"stakingctl/internal/deploy"
	"stakingctl/internal/identity"
	"stakingctl/internal/journal"
)

var ErrCallFailed = errors.New("call failed")

// StageRecorder counts stage results. metrics.Registry implements it.
type StageRecorder interface {
	StageDone(stage, status string)
}

type noopRecorder struct{}

func (noopRecorder) StageDone(string, string) {}

// Outcome is what one stage produced.
type Outcome struct {
	Stage         Stage
	AppID         uint64
	Sender        types.Address
	Result        contract.Result
	Confirmations []chain.Confirmation
	Deployment    *deploy.Deployment
	// Error is set on the outcome of the stage that stopped the run.
	Error string
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Node      chain.Node
	Submitter *chain.Submitter
	Deployer  *deploy.Deployer
	Creator   identity.Identity
	Owner     identity.Identity
	Runbook   config.RunbookConfig
	Journal   journal.Store
	Metrics   StageRecorder
	Log       slog.Logger
	RunID     string
	Now       func() time.Time
}

// Runner executes stages sequentially against one application. A deploy
// stage switches the runner to the app it resolved.
type Runner struct {
	deps  Deps
	appID uint64
}

func NewRunner(deps Deps) *Runner {
	if deps.Log == nil {
		deps.Log = slog.Disabled
	}
	if deps.Metrics == nil {
		deps.Metrics = noopRecorder{}
	}
	if deps.Journal == nil {
		deps.Journal = journal.NewMemoryStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RunID == "" {
		deps.RunID = journal.NewRunID()
	}
	return &Runner{deps: deps, appID: deps.Runbook.AppID}
}

func (r *Runner) RunID() string { return r.deps.RunID }

func (r *Runner) AppID() uint64 { return r.appID }

// Run executes stages in canonical order and stops at the first failure.
// The outcome of every stage that ran, including the failed one, is
// returned either way.
func (r *Runner) Run(ctx context.Context, stages []Stage) ([]Outcome, error) {
	log := r.deps.Log
	if len(stages) == 0 {
		log.Infof("No stages selected")
		return nil, nil
	}
	ordered := append([]Stage(nil), stages...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	var outcomes []Outcome
	for _, stage := range ordered {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		log.Infof("Stage %s (app %d)", stage, r.appID)
		out, err := r.runStage(ctx, stage)
		r.record(ctx, out, err)
		if err != nil {
			out.Error = err.Error()
			return append(outcomes, out), fmt.Errorf("stage %s: %w", stage, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage) (Outcome, error) {
	out := Outcome{Stage: stage, AppID: r.appID}
	if stage == StageDeploy {
		return r.deploy(ctx, out)
	}
	if r.appID == 0 {
		return out, errors.New("no application id: set APP_ID or run the deploy stage")
	}

	actor, res, err := r.call(ctx, stage)
	out.Sender = actor.Address
	out.Result = res
	if err != nil {
		return out, err
	}
	r.deps.Log.Infof("%s result: success=%t return=%v txns=%d", stage, res.Success, res.ReturnValue, len(res.Txns))
	if !res.Success {
		return out, fmt.Errorf("%w: %s", ErrCallFailed, res.Message)
	}
	if stage == StageWithdrawSimulate {
		r.deps.Log.Infof("Minimum allowable balance: %v", res.ReturnValue)
	}
	if !stage.writes() {
		return out, nil
	}

	confs, err := r.deps.Submitter.SignSendAndConfirm(ctx, res.Txns, actor.PrivateKey)
	out.Confirmations = confs
	if err != nil {
		return out, err
	}
	for _, c := range confs {
		r.deps.Log.Infof("%s confirmed: txn %s round %d", stage, c.TxID, c.ConfirmedRound)
	}
	return out, nil
}

func (r *Runner) deploy(ctx context.Context, out Outcome) (Outcome, error) {
	out.Sender = r.deps.Creator.Address
	if r.deps.Deployer == nil {
		return out, errors.New("deploy stage needs a deployer")
	}
	dep, err := r.deps.Deployer.Deploy(ctx, r.deps.Creator, r.deps.Runbook.Deploy)
	if err != nil {
		return out, err
	}
	out.Deployment = &dep
	out.AppID = dep.AppID
	out.Result = contract.Result{Success: true}
	if dep.Created {
		out.Confirmations = []chain.Confirmation{{TxID: dep.TxID, ConfirmedRound: dep.ConfirmedRound}}
	}
	if r.appID != 0 && r.appID != dep.AppID {
		r.deps.Log.Warnf("Switching from app %d to deployed app %d", r.appID, dep.AppID)
	}
	r.appID = dep.AppID
	return out, nil
}

// call builds the stage's call from the runbook and reports which identity
// must sign it.
func (r *Runner) call(ctx context.Context, stage Stage) (identity.Identity, contract.Result, error) {
	rb := r.deps.Runbook
	creator := contract.New(r.deps.Node, r.appID, r.deps.Creator.Address)
	owner := contract.New(r.deps.Node, r.appID, r.deps.Owner.Address)

	switch stage {
	case StageSetup:
		addr := r.deps.Owner.Address
		if rb.Setup.Owner != "" {
			var err error
			if addr, err = types.DecodeAddress(rb.Setup.Owner); err != nil {
				return r.deps.Creator, contract.Result{}, fmt.Errorf("setup owner: %w", err)
			}
		}
		res, err := creator.Setup(ctx, contract.CallOptions{Payment: rb.Setup.Payment}, addr)
		return r.deps.Creator, res, err

	case StageConfigure:
		res, err := owner.Configure(ctx, contract.CallOptions{}, rb.Configure.Period)
		return r.deps.Owner, res, err

	case StageFill:
		funding := rb.Fill.FundingTimestamp
		if funding == 0 {
			funding = uint64(r.deps.Now().Unix())
		}
		res, err := creator.Fill(ctx, contract.CallOptions{Payment: rb.Fill.Amount}, rb.Fill.Amount, funding)
		return r.deps.Creator, res, err

	case StageParticipateOnline:
		keys, err := participationKeys(rb.Participate)
		if err != nil {
			return r.deps.Owner, contract.Result{}, err
		}
		res, err := owner.Participate(ctx, contract.CallOptions{Payment: rb.Participate.Payment}, keys)
		return r.deps.Owner, res, err

	case StageParticipateOffline:
		res, err := owner.Participate(ctx, contract.CallOptions{Payment: rb.Participate.Payment}, contract.OfflineKeys())
		return r.deps.Owner, res, err

	case StageWithdrawSimulate:
		res, err := owner.SimulateWithdraw(ctx, contract.CallOptions{Fee: rb.Withdraw.Fee}, 0)
		return r.deps.Owner, res, err

	case StageWithdraw:
		res, err := owner.Withdraw(ctx, contract.CallOptions{Fee: rb.Withdraw.Fee}, rb.Withdraw.Amount)
		return r.deps.Owner, res, err

	case StageTransfer:
		if rb.Transfer.NewOwner == "" {
			return r.deps.Owner, contract.Result{}, errors.New("transfer: new owner not set")
		}
		addr, err := types.DecodeAddress(rb.Transfer.NewOwner)
		if err != nil {
			return r.deps.Owner, contract.Result{}, fmt.Errorf("transfer new owner: %w", err)
		}
		res, err := owner.Transfer(ctx, contract.CallOptions{}, addr)
		return r.deps.Owner, res, err

	case StageClose:
		res, err := owner.Close(ctx, contract.CallOptions{Fee: rb.Close.Fee, OnComplete: types.DeleteApplicationOC})
		return r.deps.Owner, res, err
	}
	return identity.Identity{}, contract.Result{}, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
}

func participationKeys(p config.ParticipateParams) (contract.ParticipationKeys, error) {
	decode := func(field, v string) ([]byte, error) {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("participation %s: %w", field, err)
		}
		return b, nil
	}
	vote, err := decode("vote key", p.VoteKey)
	if err != nil {
		return contract.ParticipationKeys{}, err
	}
	sel, err := decode("selection key", p.SelectionKey)
	if err != nil {
		return contract.ParticipationKeys{}, err
	}
	sp, err := decode("state proof key", p.StateProofKey)
	if err != nil {
		return contract.ParticipationKeys{}, err
	}
	return contract.ParticipationKeys{
		VoteKey:       vote,
		SelectionKey:  sel,
		VoteFirst:     p.VoteFirst,
		VoteLast:      p.VoteLast,
		KeyDilution:   p.KeyDilution,
		StateProofKey: sp,
	}, nil
}

// record writes the stage outcome to the journal and metrics. Journal
// failures are logged and do not fail the run.
func (r *Runner) record(ctx context.Context, out Outcome, stageErr error) {
	status := "ok"
	if stageErr != nil {
		status = "failed"
	}
	r.deps.Metrics.StageDone(out.Stage.String(), status)

	entry := journal.Entry{
		RunID: r.deps.RunID,
		Stage: out.Stage.String(),
		AppID: out.AppID,
		At:    r.deps.Now().UTC(),
	}
	if !out.Sender.IsZero() {
		entry.Sender = out.Sender.String()
	}
	for _, c := range out.Confirmations {
		if c.TxID != "" {
			entry.TxIDs = append(entry.TxIDs, c.TxID)
		}
		if c.ConfirmedRound > 0 {
			entry.Confirmations = append(entry.Confirmations, journal.Confirmation{TxID: c.TxID, Round: c.ConfirmedRound})
		}
	}
	if out.Result.ReturnValue != nil {
		if blob, err := json.Marshal(out.Result.ReturnValue); err == nil {
			entry.ReturnValue = blob
		}
	}
	if stageErr != nil {
		entry.Error = stageErr.Error()
	}
	if err := r.deps.Journal.Append(ctx, entry); err != nil {
		r.deps.Log.Warnf("Journal %s: %v", out.Stage, err)
	}
}
