// Package ethtest serves a minimal in-process JSON-RPC node for tests.
package ethtest

import (
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// Node mines every transaction it receives into its own block. Fields may
// be changed between calls through the setters.
type Node struct {
	URL     string
	chainID uint64

	mu            sync.Mutex
	nonces        map[common.Address]uint64
	balances      map[common.Address]*big.Int
	code          map[common.Address][]byte
	block         uint64
	autoMine      bool
	estimateErr   error
	callErr       error
	receiptStatus uint64
	sent          []*types.Transaction
	receipts      map[common.Hash]*types.Receipt
}

// RevertError is a JSON-RPC revert carrying ABI-encoded data.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// NewNode starts a node reporting chainID. It stops with the test.
func NewNode(t testing.TB, chainID uint64) *Node {
	t.Helper()
	n := &Node{
		chainID:       chainID,
		nonces:        make(map[common.Address]uint64),
		balances:      make(map[common.Address]*big.Int),
		code:          make(map[common.Address][]byte),
		receipts:      make(map[common.Hash]*types.Receipt),
		receiptStatus: types.ReceiptStatusSuccessful,
		block:         1,
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &service{n}); err != nil {
		t.Fatalf("register eth service: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	n.URL = ts.URL
	return n
}

func (n *Node) ChainID() uint64 { return n.chainID }

// SetAutoMine makes every eth_blockNumber call advance the chain by one block.
func (n *Node) SetAutoMine(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoMine = on
}

func (n *Node) SetBalance(addr common.Address, wei *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[addr] = new(big.Int).Set(wei)
}

func (n *Node) SetNonce(addr common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[addr] = nonce
}

// SetEstimateError makes eth_estimateGas fail with err.
func (n *Node) SetEstimateError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.estimateErr = err
}

// SetCallError makes eth_call fail with err.
func (n *Node) SetCallError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callErr = err
}

// SetReceiptStatus sets the status of receipts for transactions sent afterwards.
func (n *Node) SetReceiptStatus(status uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receiptStatus = status
}

func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *Node) Code(addr common.Address) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code[addr]
}

func (n *Node) Block() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.block
}

// service is the eth_ namespace. Method names map to eth_<lowerCamel>.
type service struct {
	n *Node
}

func (s *service) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(s.n.chainID))
}

func (s *service) BlockNumber() hexutil.Uint64 {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.n.autoMine {
		s.n.block++
	}
	return hexutil.Uint64(s.n.block)
}

func (s *service) GetBlockByNumber(number string, full bool) (*types.Header, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return &types.Header{
		Number:     new(big.Int).SetUint64(s.n.block),
		Difficulty: new(big.Int),
		GasLimit:   30_000_000,
	}, nil
}

func (s *service) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return hexutil.Uint64(s.n.nonces[addr])
}

func (s *service) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(2_000_000_000))
}

func (s *service) EstimateGas(args map[string]interface{}, block *string) (hexutil.Uint64, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.n.estimateErr != nil {
		return 0, s.n.estimateErr
	}
	_, hasInput := args["input"]
	_, hasData := args["data"]
	if hasInput || hasData {
		return 60000, nil
	}
	return 21000, nil
}

func (s *service) GetBalance(addr common.Address, block string) *hexutil.Big {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if b, ok := s.n.balances[addr]; ok {
		return (*hexutil.Big)(new(big.Int).Set(b))
	}
	return (*hexutil.Big)(new(big.Int))
}

func (s *service) GetCode(addr common.Address, block string) hexutil.Bytes {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return s.n.code[addr]
}

func (s *service) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return nil, s.n.callErr
}

func (s *service) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Hash{}, err
	}

	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.block++
	s.n.nonces[from] = tx.Nonce() + 1
	r := &types.Receipt{
		Status:            s.n.receiptStatus,
		TxHash:            tx.Hash(),
		Logs:              []*types.Log{},
		BlockNumber:       new(big.Int).SetUint64(s.n.block),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(s.n.block)),
		GasUsed:           tx.Gas() * 3 / 4,
		CumulativeGasUsed: tx.Gas() * 3 / 4,
		EffectiveGasPrice: tx.GasPrice(),
	}
	if tx.To() == nil && r.Status == types.ReceiptStatusSuccessful {
		r.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
		s.n.code[r.ContractAddress] = []byte{0x60, 0x80}
	}
	if tx.To() != nil && r.Status == types.ReceiptStatusSuccessful && tx.Value().Sign() > 0 {
		to := *tx.To()
		bal := s.n.balances[to]
		if bal == nil {
			bal = new(big.Int)
		}
		s.n.balances[to] = new(big.Int).Add(bal, tx.Value())
	}
	s.n.sent = append(s.n.sent, tx)
	s.n.receipts[tx.Hash()] = r
	return tx.Hash(), nil
}

func (s *service) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return s.n.receipts[hash], nil
}
