package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/solana/stub"
	"solana-wallet-ledger/internal/storage/memory"
)

var testMint = base58.Encode(bytes.Repeat([]byte{7}, 32))

func creation(mint, source string) discovery.CreationEvent {
	return discovery.CreationEvent{
		Mint:       mint,
		Decimals:   6,
		Program:    discovery.PumpSwap,
		SourceName: source,
		Signature:  "sig-" + source,
		Slot:       100,
		Timestamp:  1_700_000_000_000,
	}
}

func fixedNow() time.Time { return time.UnixMilli(1_700_000_500_000) }

func mintAccount(supply uint64, decimals byte) *solana.AccountInfo {
	data := make([]byte, mintAccountSize)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	return &solana.AccountInfo{Data: base64.StdEncoding.EncodeToString(data)}
}

func metadataAccount(name, symbol string) *solana.AccountInfo {
	data := make([]byte, metadataNameFrom)
	data[0] = metadataV1Key
	for _, s := range []string{name, symbol} {
		padded := s + "\x00\x00\x00"
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(padded)))
		data = append(data, l[:]...)
		data = append(data, padded...)
	}
	return &solana.AccountInfo{Data: base64.StdEncoding.EncodeToString(data)}
}

type failingMetadata struct{ calls int }

func (f *failingMetadata) Fetch(context.Context, string) (*Metadata, error) {
	f.calls++
	return nil, errors.New("rpc down")
}

func TestRegistry_RegisterIsFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	r := New(store, Options{Now: fixedNow})

	id1, created, err := r.Register(ctx, creation(testMint, "PumpSwap"))
	require.NoError(t, err)
	assert.True(t, created)

	second := creation(testMint, "Raydium CLMM")
	second.Program = discovery.RaydiumCLMM
	id2, created, err := r.Register(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	// A fresh registry without cache hits the store and still returns the same id.
	id3, created, err := New(store, Options{}).Register(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id3)

	tok, err := store.GetByMint(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, "PumpSwap", tok.SourceName)
	assert.Equal(t, discovery.PumpSwap, tok.Program)
	assert.Equal(t, "sig-PumpSwap", tok.CreationSignature)
	assert.Equal(t, int64(1_700_000_500_000), tok.RegisteredAt)
	assert.Equal(t, 6, tok.Decimals)
}

func TestRegistry_RegisterRejectsEmptyMint(t *testing.T) {
	_, _, err := New(memory.NewTokenStore(), Options{}).Register(context.Background(), creation("", "PumpSwap"))
	assert.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	r := New(store, Options{})

	_, err := r.Lookup(ctx, testMint)
	assert.ErrorIs(t, err, ErrUnknownToken)

	id, _, err := r.Register(ctx, creation(testMint, "PumpSwap"))
	require.NoError(t, err)

	got, err := r.Lookup(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = New(store, Options{}).Lookup(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestRegistry_EnrichesNewTokens(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	rpc.Accounts[testMint] = mintAccount(1_000_000_000_000, 6)
	pda, err := metadataPDA(testMint)
	require.NoError(t, err)
	rpc.Accounts[pda] = metadataAccount("Dog Coin", "DOG")

	store := memory.NewTokenStore()
	r := New(store, Options{Metadata: NewRPCMetadataSource(rpc)})

	_, _, err = r.Register(ctx, creation(testMint, "PumpSwap"))
	require.NoError(t, err)

	tok, err := store.GetByMint(ctx, testMint)
	require.NoError(t, err)
	require.NotNil(t, tok.Name)
	require.NotNil(t, tok.Symbol)
	require.NotNil(t, tok.TotalSupply)
	assert.Equal(t, "Dog Coin", *tok.Name)
	assert.Equal(t, "DOG", *tok.Symbol)
	assert.True(t, decimal.NewFromInt(1_000_000).Equal(*tok.TotalSupply), tok.TotalSupply.String())
}

func TestRegistry_EnrichmentFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	md := &failingMetadata{}
	r := New(memory.NewTokenStore(), Options{Metadata: md})

	id, created, err := r.Register(ctx, creation(testMint, "PumpSwap"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, id)
	assert.Equal(t, 1, md.calls)

	// Known mints are served from cache without another fetch.
	_, _, err = r.Register(ctx, creation(testMint, "PumpSwap"))
	require.NoError(t, err)
	assert.Equal(t, 1, md.calls)
}

func TestRPCMetadataSource_MissingAccounts(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	src := NewRPCMetadataSource(rpc)

	md, err := src.Fetch(ctx, testMint)
	require.NoError(t, err)
	assert.Nil(t, md)

	rpc.Accounts[testMint] = mintAccount(42, 0)
	md, err = src.Fetch(ctx, testMint)
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Nil(t, md.Name)
	assert.Equal(t, 0, *md.Decimals)
	assert.True(t, decimal.NewFromInt(42).Equal(*md.Supply))
}

func TestParseMintData_TooShort(t *testing.T) {
	err := parseMintData(base64.StdEncoding.EncodeToString(make([]byte, 10)), &Metadata{})
	assert.Error(t, err)
}

func TestParseMetaplexData_Malformed(t *testing.T) {
	md := &Metadata{}
	parseMetaplexData(base64.StdEncoding.EncodeToString([]byte{metadataV1Key, 1, 2}), md)
	assert.Nil(t, md.Name)

	wrongKey := metadataAccount("X", "Y")
	raw, _ := base64.StdEncoding.DecodeString(wrongKey.Data)
	raw[0] = 1
	parseMetaplexData(base64.StdEncoding.EncodeToString(raw), md)
	assert.Nil(t, md.Name)
	assert.Nil(t, md.Symbol)
}
