package rpc

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// error codes: https://github.com/anza-xyz/agave/blob/489f483e1d7b30ef114e0123994818b2accfa389/rpc-client-api/src/custom_error.rs#L17
const (
	BlockCleanedUpCode                           = -32001
	SendTransactionPreflightFailureCode          = -32002
	TransactionSignatureVerificationFailureCode  = -32003
	BlockNotAvailableCode                        = -32004
	NodeUnhealthyCode                            = -32005
	TransactionPrecompileVerificationFailureCode = -32006
	SlotSkippedCode                              = -32007
	NoSnapshotCode                               = -32008
	LongTermStorageSlotSkippedCode               = -32009
	KeyExcludedFromSecondaryIndexCode            = -32010
	TransactionHistoryNotAvailableCode           = -32011
	ScanErrorCode                                = -32012
	TransactionSignatureLengthMismatchCode       = -32013
	BlockStatusNotYetAvailableCode               = -32014
	UnsupportedTransactionVersionCode            = -32015
	MinContextSlotNotReachedCode                 = -32016
	EpochRewardsPeriodActiveCode                 = -32017
	SlotNotEpochBoundaryCode                     = -32018
)

type RPCError struct {
	Code    int64          `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Method  string         `json:"-"`
}

var (
	// unavailableCodes are the getBlock errors meaning the block will never be served for that slot.
	unavailableCodes = []int64{BlockNotAvailableCode, SlotSkippedCode, LongTermStorageSlotSkippedCode}
	// unavailableSignatures catch the same conditions when they arrive without a code, e.g. behind a proxy.
	unavailableSignatures = []string{"was skipped", "missing due to ledger jump", "Block not available"}
)

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s rpc error (code: %d): %s (data: %v)", e.Method, e.Code, e.Message, e.Data)
}

// IsSlotUnavailable reports whether err says the slot has no block and never will:
// the slot was skipped, lost to a ledger jump, or the block is not available.
func IsSlotUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && slices.Contains(unavailableCodes, rpcErr.Code) {
		return true
	}
	message := err.Error()
	for _, signature := range unavailableSignatures {
		if strings.Contains(message, signature) {
			return true
		}
	}
	return false
}
