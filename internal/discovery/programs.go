package discovery

import "solana-wallet-ledger/internal/domain"

// Monitored program IDs.
const (
	PumpFun          = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	PumpSwap         = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	RaydiumCLMM      = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	RaydiumAMMV4     = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	RaydiumLaunchLab = "LanMV9sAd7wArD4vJFi2qDdfnVhFxYSUg6eADduJ3uj"
	FluxBeam         = "FLUXubRmkEi2q6K3Y9kBPg9248ggaZVsoSFhtJHSrm1X"
	HeavenDEX        = "HEAVENoP2qxoeuF8Dj2oT1GHEnu49U5mJYkdeC8BAX2o"
	MeteoraDLMM      = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
	MeteoraDAMMV2    = "cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG"
	MeteoraDAMMV1    = "Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB"
	MeteoraDBC       = "dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN"
	Moonit           = "MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG"
	OrcaWhirlpool    = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
)

// DefaultSources returns the programs monitored when no sources are configured.
// "Instruction: Create" alone would also match the associated token program's
// CreateIdempotent, so launchpads with short instruction names use anchored patterns.
func DefaultSources() []domain.Source {
	return []domain.Source{
		{
			Name:        "Pump.fun",
			Address:     PumpFun,
			LogPatterns: []string{`^Program log: Instruction: Create(V2)?$`},
		},
		{
			Name:    "PumpSwap",
			Address: PumpSwap,
			Markers: []string{"Instruction: CreatePool"},
		},
		{
			Name:    "Raydium CLMM",
			Address: RaydiumCLMM,
			Markers: []string{"Instruction: CreatePool"},
		},
		{
			Name:    "Raydium AMM v4",
			Address: RaydiumAMMV4,
			Markers: []string{"initialize2"},
		},
		{
			Name:        "Raydium LaunchLab",
			Address:     RaydiumLaunchLab,
			LogPatterns: []string{`^Program log: Instruction: Initialize(V2)?$`},
		},
		{
			Name:        "FluxBeam",
			Address:     FluxBeam,
			LogPatterns: []string{`^Program log: Instruction: Initialize$`},
		},
		{
			Name:        "HeavenDEX",
			Address:     HeavenDEX,
			LogPatterns: []string{`Instruction: Create\w*Pool`},
		},
		{
			Name:    "Meteora DLMM",
			Address: MeteoraDLMM,
			Markers: []string{"Instruction: InitializeLbPair", "Instruction: InitializeCustomizablePermissionlessLbPair"},
		},
		{
			Name:    "Meteora DAMM v2",
			Address: MeteoraDAMMV2,
			Markers: []string{"Instruction: InitializePool", "Instruction: InitializeCustomizablePool"},
		},
		{
			Name:    "Meteora DAMM v1",
			Address: MeteoraDAMMV1,
			Markers: []string{"Instruction: InitializePermissionlessConstantProductPool"},
		},
		{
			Name:    "Meteora DBC",
			Address: MeteoraDBC,
			Markers: []string{"Instruction: InitializeVirtualPoolWithSplToken", "Instruction: InitializeVirtualPoolWithToken2022"},
		},
		{
			Name:    "Moonit",
			Address: Moonit,
			Markers: []string{"Instruction: TokenMint"},
		},
		{
			Name:    "Orca Whirlpool",
			Address: OrcaWhirlpool,
			Markers: []string{"Instruction: InitializePool"},
		},
	}
}
