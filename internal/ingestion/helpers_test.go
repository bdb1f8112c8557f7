package ingestion

import (
	"bytes"
	"crypto/ed25519"
	"strconv"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/registry"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/solana/stub"
	"solana-wallet-ledger/internal/storage/memory"
)

const (
	testMint    = "MemeMint1111111111111111111111111111111111"
	feeLamports = 5000
)

func walletAddress(seed byte) string {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	return base58.Encode(priv.Public().(ed25519.PublicKey))
}

func testSource(t *testing.T) *discovery.EventSource {
	t.Helper()
	src, err := discovery.NewEventSource(domain.Source{
		Name:    "PumpSwap",
		Address: discovery.PumpSwap,
		Markers: []string{"Instruction: CreatePool"},
	})
	require.NoError(t, err)
	return src
}

// creationTx creates a pool for mint; the vault is off-curve so no trade is seen.
func creationTx(sig string, slot int64, mint string) *solana.Transaction {
	vault := discovery.FindProgramAddress([][]byte{[]byte("vault"), []byte(mint)}, discovery.PumpSwap)
	return &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		BlockTime: 1_700_000_000 + slot,
		Meta: &solana.TransactionMeta{
			LogMessages: []string{"Program log: Instruction: CreatePool"},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: vault, Amount: "1000000000000", Decimals: 6},
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{walletAddress(99), "vaultAta"}},
	}
}

// tradeTx moves the wallet's token balance from pre to post (raw, 6 decimals)
// against lamports of SOL. The wallet pays the fee.
func tradeTx(sig string, slot int64, wallet, mint string, pre, post, lamports int64) *solana.Transaction {
	solPre := uint64(10_000_000_000)
	solPost := solPre - feeLamports
	if post > pre {
		solPost -= uint64(lamports)
	} else {
		solPost += uint64(lamports)
	}
	return &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		BlockTime: 1_700_000_000 + slot,
		Meta: &solana.TransactionMeta{
			Fee:          feeLamports,
			LogMessages:  []string{"Program log: Instruction: Swap"},
			PreBalances:  []uint64{solPre, 0},
			PostBalances: []uint64{solPost, 0},
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: wallet, Amount: strconv.FormatInt(pre, 10), Decimals: 6},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: wallet, Amount: strconv.FormatInt(post, 10), Decimals: 6},
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{wallet, "walletAta"}},
	}
}

type fixture struct {
	rpc      *stub.RPCClient
	tokens   *memory.TokenStore
	ledger   *memory.LedgerStore
	cursors  *memory.CursorStore
	failed   *memory.FailedSignatureStore
	archive  *memory.EventArchive
	registry *registry.Registry
	book     *ledger.Ledger
	poller   *Poller
}

func fastRetry() RetryPolicy {
	return RetryPolicy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 1}
}

func newFixture(t *testing.T, mutate func(*PollerOptions)) *fixture {
	t.Helper()
	f := &fixture{
		rpc:     stub.NewRPCClient(),
		tokens:  memory.NewTokenStore(),
		ledger:  memory.NewLedgerStore(),
		cursors: memory.NewCursorStore(),
		failed:  memory.NewFailedSignatureStore(),
		archive: memory.NewEventArchive(),
	}
	f.registry = registry.New(f.tokens, registry.Options{})
	f.book = ledger.New(f.ledger, ledger.Options{})

	opts := PollerOptions{
		Source:         testSource(t),
		RPC:            f.rpc,
		Registry:       f.registry,
		Ledger:         f.book,
		Cursors:        f.cursors,
		Failed:         f.failed,
		Archive:        f.archive,
		Fills:          f.ledger,
		Interval:       10 * time.Millisecond,
		StorageRetry:   fastRetry(),
		TransportRetry: RetryPolicy{Initial: 5 * time.Millisecond, Max: 10 * time.Millisecond, Multiplier: 2},
		Logger:         zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	p, err := NewPoller(opts)
	require.NoError(t, err)
	f.poller = p
	return f
}

func (f *fixture) add(tx *solana.Transaction) {
	f.rpc.AddTransaction(discovery.PumpSwap, tx)
}
