package codec

import "github.com/archon-research/stl-trade/internal/domain/entity"

// On-chain layouts of the lending program accounts, borsh encoded after an
// 8-byte discriminator.

const maxOracleKeys = 5

type interestRateConfigLayout struct {
	OptimalUtilizationRate WrappedI80F48
	PlateauInterestRate    WrappedI80F48
	MaxInterestRate        WrappedI80F48
	InsuranceFeeFixedApr   WrappedI80F48
	InsuranceIrFee         WrappedI80F48
	ProtocolFixedFeeApr    WrappedI80F48
	ProtocolIrFee          WrappedI80F48
}

type bankConfigLayout struct {
	AssetWeightInit          WrappedI80F48
	AssetWeightMaint         WrappedI80F48
	LiabilityWeightInit      WrappedI80F48
	LiabilityWeightMaint     WrappedI80F48
	DepositLimit             uint64
	InterestRateConfig       interestRateConfigLayout
	OperationalState         uint8
	OracleSetup              uint8
	OracleKeys               [maxOracleKeys][32]byte
	BorrowLimit              uint64
	RiskTier                 uint8
	TotalAssetValueInitLimit uint64
	OracleMaxAge             uint16
}

type bankLayout struct {
	Mint                 [32]byte
	MintDecimals         uint8
	Group                [32]byte
	AssetShareValue      WrappedI80F48
	LiabilityShareValue  WrappedI80F48
	TotalLiabilityShares WrappedI80F48
	TotalAssetShares     WrappedI80F48
	LastUpdate           int64
	Config               bankConfigLayout
}

type balanceLayout struct {
	Active          bool
	BankPk          [32]byte
	AssetShares     WrappedI80F48
	LiabilityShares WrappedI80F48
	LastUpdate      uint64
}

type accountLayout struct {
	Group     [32]byte
	Authority [32]byte
	Balances  [entity.MaxBalances]balanceLayout
	Flags     uint64
}

// priceLayout is a push-oracle price update: price and confidence scaled by 10^Exponent.
type priceLayout struct {
	FeedID      [32]byte
	Price       int64
	Conf        uint64
	Exponent    int32
	PublishTime int64
}
