package rpc

type (
	Response[T any] struct {
		Jsonrpc string   `json:"jsonrpc"`
		Id      int      `json:"id"`
		Result  T        `json:"result"`
		Error   RPCError `json:"error"`
	}

	contextualResult[T any] struct {
		Value   T `json:"value"`
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
	}

	Block struct {
		BlockHeight       *int64                `json:"blockHeight"`
		BlockTime         *int64                `json:"blockTime"`
		Blockhash         string                `json:"blockhash"`
		ParentSlot        int64                 `json:"parentSlot"`
		PreviousBlockhash string                `json:"previousBlockhash"`
		Transactions      []TransactionWithMeta `json:"transactions"`
	}

	TransactionWithMeta struct {
		Transaction Transaction      `json:"transaction"`
		Meta        *TransactionMeta `json:"meta"`
		// Version is either the string "legacy" or a number, hence any.
		Version any `json:"version,omitempty"`
	}

	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    Message  `json:"message"`
	}

	Message struct {
		AccountKeys  []string      `json:"accountKeys"`
		Instructions []Instruction `json:"instructions"`
	}

	Instruction struct {
		// ProgramIdIndex indexes into the static account keys followed by any loaded addresses.
		ProgramIdIndex int    `json:"programIdIndex"`
		Accounts       []int  `json:"accounts"`
		Data           string `json:"data"`
	}

	TransactionMeta struct {
		Err                  any              `json:"err"`
		Fee                  int64            `json:"fee"`
		ComputeUnitsConsumed *int64           `json:"computeUnitsConsumed,omitempty"`
		LogMessages          []string         `json:"logMessages"`
		LoadedAddresses      *LoadedAddresses `json:"loadedAddresses,omitempty"`
	}

	// LoadedAddresses are the accounts a v0 transaction pulls in from address lookup tables.
	LoadedAddresses struct {
		Writable []string `json:"writable"`
		Readonly []string `json:"readonly"`
	}

	InflationRate struct {
		// Total inflation
		Total float64 `json:"total"`
		// Inflation allocated to validators
		Validator float64 `json:"validator"`
		// Inflation allocated to the foundation
		Foundation float64 `json:"foundation"`
		// Epoch for which these values are valid
		Epoch int64 `json:"epoch"`
	}

	Supply struct {
		// Total supply in lamports
		Total int64 `json:"total"`
		// Circulating supply in lamports
		Circulating int64 `json:"circulating"`
		// Non-circulating supply in lamports
		NonCirculating int64 `json:"nonCirculating"`
	}
)

// AccountKeys returns the full account list of the transaction, in the order instruction indexes refer to:
// static keys, then writable and readonly lookup-table addresses.
func (tx *TransactionWithMeta) AccountKeys() []string {
	keys := tx.Transaction.Message.AccountKeys
	if tx.Meta == nil || tx.Meta.LoadedAddresses == nil {
		return keys
	}
	all := make([]string, 0, len(keys)+len(tx.Meta.LoadedAddresses.Writable)+len(tx.Meta.LoadedAddresses.Readonly))
	all = append(all, keys...)
	all = append(all, tx.Meta.LoadedAddresses.Writable...)
	return append(all, tx.Meta.LoadedAddresses.Readonly...)
}

// ProgramIds returns the program invoked by each top-level instruction. Instructions whose index
// falls outside the account list are left out.
func (tx *TransactionWithMeta) ProgramIds() []string {
	keys := tx.AccountKeys()
	programs := make([]string, 0, len(tx.Transaction.Message.Instructions))
	for _, instruction := range tx.Transaction.Message.Instructions {
		if instruction.ProgramIdIndex < 0 || instruction.ProgramIdIndex >= len(keys) {
			continue
		}
		programs = append(programs, keys[instruction.ProgramIdIndex])
	}
	return programs
}

// LogMessages returns the program log of the transaction, or nil if the node did not record one.
func (tx *TransactionWithMeta) LogMessages() []string {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.LogMessages
}
