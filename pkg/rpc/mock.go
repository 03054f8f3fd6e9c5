package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"go.uber.org/zap"
)

type MockOpt int

const (
	EasyResultsOpt MockOpt = iota
	SlotInfosOpt
	FailuresOpt
	SlotSequenceOpt
)

type (
	// MockServer represents a mock Solana RPC server for testing
	MockServer struct {
		server   *http.Server
		listener net.Listener
		mu       sync.Mutex
		logger   *zap.SugaredLogger

		easyResults map[string]any
		// failures is the number of rate-limited responses still to be served per slot before getBlock succeeds
		failures map[int]int
		// slotSequence is consumed one entry per getSlot call; the last entry repeats
		slotSequence []int
		calls        map[string]int

		SlotInfos map[int]MockSlotInfo
	}

	MockTransaction struct {
		// Programs invoked by the top-level instructions, in order.
		Programs     []string
		Fee          int
		ComputeUnits *int
		Logs         []string
	}

	MockBlockInfo struct {
		Transactions []MockTransaction
	}

	// MockSlotInfo with a nil Block is a skipped slot. Slots without any MockSlotInfo are unavailable.
	MockSlotInfo struct {
		Block *MockBlockInfo
	}
)

// NewMockServer creates a new mock server instance
func NewMockServer(easyResults map[string]any, slotInfos map[int]MockSlotInfo) (*MockServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %v", err)
	}

	ms := &MockServer{
		listener:    listener,
		logger:      slog.Get(),
		easyResults: easyResults,
		failures:    make(map[int]int),
		calls:       make(map[string]int),
		SlotInfos:   slotInfos,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRPCRequest)

	ms.server = &http.Server{Handler: mux}

	go func() {
		_ = ms.server.Serve(listener)
	}()

	return ms, nil
}

// URL returns the URL of the mock server
func (s *MockServer) URL() string {
	return fmt.Sprintf("http://%s", s.listener.Addr().String())
}

// Close shuts down the mock server
func (s *MockServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *MockServer) MustClose() {
	if err := s.Close(); err != nil {
		panic(err)
	}
}

func (s *MockServer) SetOpt(opt MockOpt, key any, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch opt {
	case EasyResultsOpt:
		if s.easyResults == nil {
			s.easyResults = make(map[string]any)
		}
		s.easyResults[key.(string)] = value
	case SlotInfosOpt:
		if s.SlotInfos == nil {
			s.SlotInfos = make(map[int]MockSlotInfo)
		}
		s.SlotInfos[key.(int)] = value.(MockSlotInfo)
	case FailuresOpt:
		s.failures[key.(int)] = value.(int)
	case SlotSequenceOpt:
		s.slotSequence = value.([]int)
	}
}

// Calls returns how many requests for method the server has received.
func (s *MockServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *MockServer) getResult(method string, params ...any) (any, *RPCError, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++

	if method == "getSlot" && len(s.slotSequence) > 0 {
		slot := s.slotSequence[0]
		if len(s.slotSequence) > 1 {
			s.slotSequence = s.slotSequence[1:]
		}
		return slot, nil, http.StatusOK
	}

	if method == "getBlock" && s.SlotInfos != nil {
		slot := int(params[0].(float64))
		if remaining := s.failures[slot]; remaining > 0 {
			s.failures[slot] = remaining - 1
			return nil, nil, http.StatusTooManyRequests
		}

		slotInfo, ok := s.SlotInfos[slot]
		if !ok {
			s.logger.Warnf("no slot info for slot %d", slot)
			return nil, &RPCError{
				Code: BlockNotAvailableCode, Message: fmt.Sprintf("Block not available for slot %d", slot),
			}, http.StatusOK
		}
		if slotInfo.Block == nil {
			return nil, &RPCError{
				Code:    SlotSkippedCode,
				Message: fmt.Sprintf("Slot %d was skipped, or missing due to ledger jump to recent snapshot", slot),
			}, http.StatusOK
		}

		transactions := make([]map[string]any, 0, len(slotInfo.Block.Transactions))
		for _, tx := range slotInfo.Block.Transactions {
			transactions = append(transactions, mockTransactionResult(tx))
		}
		return map[string]any{"parentSlot": slot - 1, "transactions": transactions}, nil, http.StatusOK
	}

	// default is use easy results:
	result, ok := s.easyResults[method]
	if !ok {
		return nil, &RPCError{Code: -32601, Message: "Method not found"}, http.StatusOK
	}
	return result, nil, http.StatusOK
}

func mockTransactionResult(tx MockTransaction) map[string]any {
	accountKeys := append([]string{"payer"}, tx.Programs...)
	instructions := make([]map[string]any, len(tx.Programs))
	for i := range tx.Programs {
		instructions[i] = map[string]any{"programIdIndex": i + 1, "accounts": []int{0}, "data": ""}
	}
	meta := map[string]any{"err": nil, "fee": tx.Fee, "logMessages": tx.Logs}
	if tx.ComputeUnits != nil {
		meta["computeUnitsConsumed"] = *tx.ComputeUnits
	}
	return map[string]any{
		"transaction": map[string]any{
			"signatures": []string{"sig"},
			"message":    map[string]any{"accountKeys": accountKeys, "instructions": instructions},
		},
		"meta": meta,
	}
}

func (s *MockServer) handleRPCRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	var request Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := Response[any]{Jsonrpc: "2.0", Id: request.Id}
	result, rpcErr, status := s.getResult(request.Method, request.Params...)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if rpcErr != nil {
		response.Error = *rpcErr
	} else {
		response.Result = result
	}

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewMockClient creates a new test client with a running mock server
func NewMockClient(
	t *testing.T, easyResults map[string]any, slotInfos map[int]MockSlotInfo,
) (*MockServer, *Client) {
	server, err := NewMockServer(easyResults, slotInfos)
	if err != nil {
		t.Fatalf("failed to create mock server: %v", err)
	}

	t.Cleanup(func() {
		if err := server.Close(); err != nil {
			t.Errorf("failed to close mock server: %v", err)
		}
	})

	client := NewRPCClient(server.URL(), time.Second)
	return server, client
}
