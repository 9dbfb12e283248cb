package config

// RunbookConfig models runbook.json, the per-stage parameters of one
// operator run against a contract instance.
type RunbookConfig struct {
	AppID       uint64            `json:"appId"`
	Deploy      DeployParams      `json:"deploy"`
	Setup       SetupParams       `json:"setup"`
	Configure   ConfigureParams   `json:"configure"`
	Fill        FillParams        `json:"fill"`
	Participate ParticipateParams `json:"participate"`
	Withdraw    WithdrawParams    `json:"withdraw"`
	Transfer    TransferParams    `json:"transfer"`
	Close       CloseParams       `json:"close"`
}

type DeployParams struct {
	Name          string `json:"name"`
	PeriodSeconds uint64 `json:"periodSeconds"`
	VestingDelay  uint64 `json:"vestingDelay"`
	LockupDelay   uint64 `json:"lockupDelay"`
	ApprovalPath  string `json:"approvalPath"`
	ClearPath     string `json:"clearPath"`
}

type SetupParams struct {
	Owner   string `json:"owner"`
	Payment uint64 `json:"payment"`
}

type ConfigureParams struct {
	Period uint64 `json:"period"`
}

// FillParams funds the contract. A zero FundingTimestamp means "now".
type FillParams struct {
	Amount           uint64 `json:"amount"`
	FundingTimestamp uint64 `json:"fundingTimestamp"`
}

// ParticipateParams carries base64 encoded participation keys.
type ParticipateParams struct {
	VoteKey       string `json:"voteKey"`
	SelectionKey  string `json:"selectionKey"`
	StateProofKey string `json:"stateProofKey"`
	VoteFirst     uint64 `json:"voteFirst"`
	VoteLast      uint64 `json:"voteLast"`
	KeyDilution   uint64 `json:"keyDilution"`
	Payment       uint64 `json:"payment"`
}

type WithdrawParams struct {
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`
}

type TransferParams struct {
	NewOwner string `json:"newOwner"`
}

type CloseParams struct {
	Fee uint64 `json:"fee"`
}

// DefaultRunbook returns the parameters of the reference testnet instance.
func DefaultRunbook() RunbookConfig {
	return RunbookConfig{
		AppID: defaultAppID,
		Deploy: DeployParams{
			Name:          "20",
			PeriodSeconds: 30,
			VestingDelay:  12,
			LockupDelay:   12,
			ApprovalPath:  "artifacts/SmartContractStaking.approval.teal",
			ClearPath:     "artifacts/SmartContractStaking.clear.teal",
		},
		Setup: SetupParams{
			Owner:   "SU67PS6BFKHQBBBQQJZOWME6W6KNFUZLTHAC5FQLCGL6WPCTTSRTUOVFWI",
			Payment: 100_000,
		},
		Configure: ConfigureParams{Period: 1},
		Fill:      FillParams{Amount: 1_000_000},
		Participate: ParticipateParams{
			VoteKey:       "rqzFOfwFPvMCkVxk/NKgj8idbwrsEGwxDbQwmHwtACE=",
			SelectionKey:  "oxigRtYVOHpCD/qldT814sPYeQGzgUfjBOpbD3NHv0Y=",
			StateProofKey: "FxHMlnefM+QUzFEi9jF4moujCSs9iFYPyUX0+yvJgoMmXxTZfFd5Wus2InMW/FAP+mXSeZqBrezUdx88q0VTpw==",
			VoteFirst:     6558699,
			VoteLast:      9558699,
			KeyDilution:   1733,
			Payment:       1000,
		},
		Withdraw: WithdrawParams{Amount: 1_000_000, Fee: 2000},
		Close:    CloseParams{Fee: 2000},
	}
}
