package registry

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/solana"
)

// Metaplex Token Metadata program ID
const metaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const (
	mintAccountSize  = 82
	metadataV1Key    = 4
	maxNameLength    = 100
	maxSymbolLength  = 20
	metadataNameFrom = 65 // key(1) + updateAuthority(32) + mint(32)
)

// Metadata holds static token fields read from chain. Nil fields are unknown.
type Metadata struct {
	Name     *string
	Symbol   *string
	Decimals *int
	Supply   *decimal.Decimal // UI units
}

// RPCMetadataSource reads the SPL mint account and the Metaplex metadata account.
type RPCMetadataSource struct {
	rpc solana.AccountReader
}

// NewRPCMetadataSource creates a metadata source on top of an account reader.
func NewRPCMetadataSource(rpc solana.AccountReader) *RPCMetadataSource {
	return &RPCMetadataSource{rpc: rpc}
}

// Fetch returns metadata for mint. Decimals and supply come from the mint
// account, name and symbol from the Metaplex metadata PDA when it exists.
func (s *RPCMetadataSource) Fetch(ctx context.Context, mint string) (*Metadata, error) {
	mintInfo, err := s.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account info: %w", err)
	}
	if mintInfo == nil {
		return nil, nil
	}

	md := &Metadata{}
	if err := parseMintData(mintInfo.Data, md); err != nil {
		return nil, err
	}

	pda, err := metadataPDA(mint)
	if err != nil {
		return md, nil
	}
	metaInfo, err := s.rpc.GetAccountInfo(ctx, pda)
	if err == nil && metaInfo != nil {
		parseMetaplexData(metaInfo.Data, md)
	}
	return md, nil
}

// parseMintData parses SPL Token Mint account data.
// Layout: mintAuthority Option<Pubkey> (36) | supply u64 | decimals u8 | ...
func parseMintData(data string, md *Metadata) error {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < mintAccountSize {
		return fmt.Errorf("mint data too short: %d", len(decoded))
	}

	supply := binary.LittleEndian.Uint64(decoded[36:44])
	decimals := int(decoded[44])

	ui := decimal.NewFromBigInt(new(big.Int).SetUint64(supply), -int32(decimals))
	md.Decimals = &decimals
	md.Supply = &ui
	return nil
}

// metadataPDA derives the Metaplex metadata account of mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func metadataPDA(mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil || len(mintBytes) != 32 {
		return "", fmt.Errorf("invalid mint %q", mint)
	}
	programBytes, err := base58.Decode(metaplexProgramID)
	if err != nil {
		return "", err
	}
	pda := discovery.FindProgramAddress([][]byte{[]byte("metadata"), programBytes, mintBytes}, metaplexProgramID)
	if pda == "" {
		return "", errors.New("no metadata address")
	}
	return pda, nil
}

// parseMetaplexData reads name and symbol from a MetadataV1 account.
// Malformed data leaves md untouched.
func parseMetaplexData(data string, md *Metadata) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(decoded) < metadataNameFrom || decoded[0] != metadataV1Key {
		return
	}

	offset := metadataNameFrom
	name, offset, ok := borshString(decoded, offset, maxNameLength)
	if !ok {
		return
	}
	if name != "" {
		md.Name = &name
	}

	symbol, _, ok := borshString(decoded, offset, maxSymbolLength)
	if ok && symbol != "" {
		md.Symbol = &symbol
	}
}

// borshString reads a u32 length-prefixed string at offset, trimming NUL padding.
func borshString(b []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(b) {
		return "", offset, false
	}
	n := int(binary.LittleEndian.Uint32(b[offset:]))
	offset += 4
	if n > maxLen || offset+n > len(b) {
		return "", offset, false
	}
	return strings.TrimRight(string(b[offset:offset+n]), "\x00"), offset + n, true
}
