package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const testChainID = 31337

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// testNode is a minimal JSON-RPC node. Every transaction it accepts is mined
// with receiptStatus once pendingPolls receipt lookups have returned null. A
// negative pendingPolls never mines.
type testNode struct {
	mu            sync.Mutex
	nonce         uint64
	receiptStatus uint64
	pendingPolls  int
	receiptPolls  int
	sent          []*types.Transaction
	requests      []rpcRequest
}

func (n *testNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			resps[i] = n.handle(req)
		}
		json.NewEncoder(w).Encode(resps)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(n.handle(req))
}

func (n *testNode) handle(req rpcRequest) rpcResponse {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "eth_chainId":
		resp.Result = hexutil.Uint64(testChainID)
	case "eth_getTransactionCount":
		resp.Result = hexutil.Uint64(n.nonce)
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		if err := json.Unmarshal(req.Params[0], &raw); err != nil {
			resp.Error = &rpcError{Code: -32602, Message: err.Error()}
			break
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			resp.Error = &rpcError{Code: -32602, Message: err.Error()}
			break
		}
		n.sent = append(n.sent, tx)
		n.nonce++
		resp.Result = tx.Hash()
	case "eth_getTransactionReceipt":
		n.receiptPolls++
		if n.pendingPolls != 0 {
			if n.pendingPolls > 0 {
				n.pendingPolls--
			}
			break
		}
		var hash common.Hash
		json.Unmarshal(req.Params[0], &hash)
		resp.Result = map[string]any{
			"type":              "0x2",
			"status":            hexutil.Uint64(n.receiptStatus),
			"cumulativeGasUsed": "0x5208",
			"gasUsed":           "0x5208",
			"effectiveGasPrice": "0x3b9aca00",
			"logsBloom":         "0x" + strings.Repeat("00", types.BloomByteLength),
			"logs":              []any{},
			"transactionHash":   hash,
			"transactionIndex":  "0x0",
			"blockHash":         common.HexToHash("0x01"),
			"blockNumber":       "0x1",
		}
	case "eth_getCode":
		resp.Result = hexutil.Bytes{0x60, 0x80}
	case "eth_getBalance":
		resp.Result = (*hexutil.Big)(Ether(10000))
	case "hardhat_setBalance":
		resp.Result = true
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found: " + req.Method}
	}
	return resp
}

func (n *testNode) lastRequest(method string) (rpcRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.requests) - 1; i >= 0; i-- {
		if n.requests[i].Method == method {
			return n.requests[i], true
		}
	}
	return rpcRequest{}, false
}

func newTestDeployer(t *testing.T, node *testNode, chainID int64) *Deployer {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	d, err := NewDeployer(context.Background(), Config{
		RPCURL:       srv.URL,
		ChainID:      chainID,
		PrivateKey:   key,
		GasFeeCap:    big.NewInt(2_000_000_000),
		GasTipCap:    big.NewInt(1_000_000_000),
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewDeployerResolvesChainID(t *testing.T) {
	node := &testNode{}
	d := newTestDeployer(t, node, 0)

	require.Zero(t, d.ChainID().Cmp(big.NewInt(testChainID)))
	_, ok := node.lastRequest("eth_chainId")
	require.True(t, ok)
}

func TestDeployCode(t *testing.T) {
	node := &testNode{nonce: 7, receiptStatus: types.ReceiptStatusSuccessful, pendingPolls: 2}
	d := newTestDeployer(t, node, testChainID)
	initCode := []byte{0x60, 0x80, 0x60, 0x40}

	res, err := d.DeployCode(context.Background(), initCode, 2_000_000)
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(d.Address(), 7), res.ContractAddress)

	require.Len(t, node.sent, 1)
	tx := node.sent[0]
	require.Equal(t, res.TxHash, tx.Hash())
	require.Nil(t, tx.To())
	require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, uint64(2_000_000), tx.Gas())
	require.Equal(t, initCode, tx.Data())

	from, err := types.Sender(types.NewLondonSigner(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	require.Equal(t, d.Address(), from)
	require.Equal(t, 3, node.receiptPolls)
}

func TestTransact(t *testing.T) {
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	t.Run("success carries value", func(t *testing.T) {
		node := &testNode{receiptStatus: types.ReceiptStatusSuccessful}
		d := newTestDeployer(t, node, testChainID)

		receipt, err := d.Transact(context.Background(), to, []byte{0x01}, Ether(1), 200_000)
		require.NoError(t, err)
		require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

		require.Len(t, node.sent, 1)
		require.Equal(t, &to, node.sent[0].To())
		require.Zero(t, Ether(1).Cmp(node.sent[0].Value()))
	})

	t.Run("nil value sends zero", func(t *testing.T) {
		node := &testNode{receiptStatus: types.ReceiptStatusSuccessful}
		d := newTestDeployer(t, node, testChainID)

		_, err := d.Transact(context.Background(), to, nil, nil, 100_000)
		require.NoError(t, err)
		require.Zero(t, node.sent[0].Value().Sign())
	})

	t.Run("mined revert", func(t *testing.T) {
		node := &testNode{receiptStatus: types.ReceiptStatusFailed}
		d := newTestDeployer(t, node, testChainID)

		_, err := d.Transact(context.Background(), to, []byte{0x01}, nil, 100_000)
		require.ErrorIs(t, err, ErrReverted)
		require.ErrorContains(t, err, node.sent[0].Hash().Hex())
	})

	t.Run("reverted deployment", func(t *testing.T) {
		node := &testNode{receiptStatus: types.ReceiptStatusFailed}
		d := newTestDeployer(t, node, testChainID)

		_, err := d.DeployCode(context.Background(), []byte{0x60}, 100_000)
		require.ErrorIs(t, err, ErrReverted)
	})
}

func TestWaitForReceiptPollsUntilDone(t *testing.T) {
	node := &testNode{pendingPolls: -1}
	d := newTestDeployer(t, node, testChainID)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err := d.WaitForReceipt(ctx, common.HexToHash("0xabc"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	node.mu.Lock()
	defer node.mu.Unlock()
	require.Greater(t, node.receiptPolls, 1)
}

func TestSend(t *testing.T) {
	node := &testNode{}
	d := newTestDeployer(t, node, testChainID)
	helper := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")

	require.NoError(t, d.Send(context.Background(), "hardhat_setBalance", nil, helper, hexutil.EncodeBig(Ether(10000))))

	req, ok := node.lastRequest("hardhat_setBalance")
	require.True(t, ok)
	require.Len(t, req.Params, 2)

	var addr common.Address
	require.NoError(t, json.Unmarshal(req.Params[0], &addr))
	require.Equal(t, helper, addr)

	var amount hexutil.Big
	require.NoError(t, json.Unmarshal(req.Params[1], &amount))
	require.Zero(t, Ether(10000).Cmp(amount.ToInt()))

	err := d.Send(context.Background(), "evm_unknown", nil)
	require.ErrorContains(t, err, "evm_unknown")
}

func TestReads(t *testing.T) {
	node := &testNode{}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	d, err := NewDeployer(context.Background(), Config{
		RPCURL:            srv.URL,
		ChainID:           testChainID,
		PrivateKey:        key,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	defer d.Close()

	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	for range 3 {
		code, err := d.CodeAt(context.Background(), addr)
		require.NoError(t, err)
		require.Equal(t, []byte{0x60, 0x80}, code)
	}

	balance, err := d.BalanceAt(context.Background(), addr)
	require.NoError(t, err)
	require.Zero(t, Ether(10000).Cmp(balance))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Send(ctx, "hardhat_setBalance", nil, addr, "0x1")
	require.ErrorIs(t, err, context.Canceled)
}
