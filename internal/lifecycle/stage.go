package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownStage = errors.New("unknown stage")

// Stage is one step of a contract's lifecycle. Stages always run in the
// order they are declared here.
type Stage int

const (
	StageDeploy Stage = iota
	StageSetup
	StageConfigure
	StageFill
	StageParticipateOnline
	StageParticipateOffline
	StageWithdrawSimulate
	StageWithdraw
	StageTransfer
	StageClose
)

var stageNames = [...]string{
	StageDeploy:             "deploy",
	StageSetup:              "setup",
	StageConfigure:          "configure",
	StageFill:               "fill",
	StageParticipateOnline:  "participate-online",
	StageParticipateOffline: "participate-offline",
	StageWithdrawSimulate:   "withdraw-simulate",
	StageWithdraw:           "withdraw",
	StageTransfer:           "transfer",
	StageClose:              "close",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Stages lists every stage in canonical order.
func Stages() []Stage {
	out := make([]Stage, len(stageNames))
	for i := range stageNames {
		out[i] = Stage(i)
	}
	return out
}

// ParseStage looks a stage up by name, ignoring case and surrounding space.
func ParseStage(name string) (Stage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// ParseStages resolves a selection to distinct stages in canonical order.
// Blank names are skipped.
func ParseStages(names []string) ([]Stage, error) {
	seen := make(map[Stage]bool)
	var out []Stage
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		s, err := ParseStage(name)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// writes reports whether the stage commits transactions.
func (s Stage) writes() bool {
	return s != StageWithdrawSimulate
}
