package contract

import (
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/abi"
)

// Method names of the staking contract.
const (
	MethodSetup       = "setup"
	MethodConfigure   = "configure"
	MethodFill        = "fill"
	MethodParticipate = "participate"
	MethodWithdraw    = "withdraw"
	MethodTransfer    = "transfer"
	MethodClose       = "close"
)

var stakingSignatures = []string{
	"setup(address)void",
	"configure(uint64)void",
	"fill(uint64,uint64)void",
	"participate(byte[],byte[],uint64,uint64,uint64,byte[])void",
	"withdraw(uint64)uint64",
	"transfer(address)void",
	"close()void",
}

// Spec is the ARC-4 method surface of a contract.
type Spec struct {
	methods map[string]abi.Method
}

// NewSpec parses method signatures such as "withdraw(uint64)uint64".
func NewSpec(signatures ...string) (*Spec, error) {
	s := &Spec{methods: make(map[string]abi.Method, len(signatures))}
	for _, sig := range signatures {
		m, err := abi.MethodFromSignature(sig)
		if err != nil {
			return nil, fmt.Errorf("parse method %q: %w", sig, err)
		}
		s.methods[m.Name] = m
	}
	return s, nil
}

// StakingSpec returns the staking contract's method surface.
func StakingSpec() *Spec {
	s, err := NewSpec(stakingSignatures...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Spec) Method(name string) (abi.Method, bool) {
	m, ok := s.methods[name]
	return m, ok
}
