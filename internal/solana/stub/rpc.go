package stub

import (
	"context"
	"errors"
	"sync"

	"solana-wallet-ledger/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Signatures are stored newest first, as the node returns them.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo

	// FailTransactions makes GetTransaction fail for the listed signatures.
	FailTransactions map[string]error
	// FailSignatures makes GetSignaturesForAddress fail when set.
	FailSignatures error

	TransactionCalls int
	SignatureCalls   int
}

var (
	_ solana.RPCClient     = (*RPCClient)(nil)
	_ solana.AccountReader = (*RPCClient)(nil)
)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:     make(map[string]*solana.Transaction),
		Signatures:       make(map[string][]solana.SignatureInfo),
		Accounts:         make(map[string]*solana.AccountInfo),
		FailTransactions: make(map[string]error),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.TransactionCalls++
	if err, ok := c.FailTransactions[signature]; ok {
		return nil, err
	}
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress returns the newest signatures for an address.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.SignatureCalls++
	if c.FailSignatures != nil {
		return nil, c.FailSignatures
	}

	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}

	out := make([]solana.SignatureInfo, len(sigs))
	copy(out, sigs)
	return out, nil
}

// GetAccountInfo returns a stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// AddTransaction adds a transaction and prepends its signature to address history.
func (c *RPCClient) AddTransaction(address string, tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx

	info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot}
	if tx.BlockTime != 0 {
		bt := tx.BlockTime
		info.BlockTime = &bt
	}
	if tx.Meta != nil {
		info.Err = tx.Meta.Err
	}
	c.Signatures[address] = append([]solana.SignatureInfo{info}, c.Signatures[address]...)
}

// SetSignatureError sets or clears the GetSignaturesForAddress failure.
func (c *RPCClient) SetSignatureError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FailSignatures = err
}

// SetTransactionError sets or clears a GetTransaction failure for one signature.
func (c *RPCClient) SetTransactionError(signature string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.FailTransactions, signature)
		return
	}
	c.FailTransactions[signature] = err
}
