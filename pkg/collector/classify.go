package collector

import (
	"slices"
	"strings"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
)

type Classification int

const (
	NonVote Classification = iota
	Vote
)

// voteInvocationLog is the line the runtime writes when the vote program is entered, at any depth.
var voteInvocationLog = "Program " + rpc.VoteProgram + " invoke"

func (c Classification) String() string {
	if c == Vote {
		return TransactionTypeVote
	}
	return TransactionTypeNonVote
}

// Classify reports whether tx is a consensus vote. Either a top-level instruction targeting the vote program
// or a vote-program invocation in the log is enough; the log check catches votes wrapped in other programs.
func Classify(tx *rpc.TransactionWithMeta) Classification {
	if slices.Contains(tx.ProgramIds(), rpc.VoteProgram) {
		return Vote
	}
	for _, line := range tx.LogMessages() {
		if strings.Contains(line, voteInvocationLog) {
			return Vote
		}
	}
	return NonVote
}
