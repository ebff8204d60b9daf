// Package codec decodes and encodes lending program accounts.
//
// Accounts are borsh encoded behind an 8-byte discriminator derived from the
// account type name, so a buffer of the wrong type is rejected before decoding.
package codec

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

const discriminatorLength = 8

var (
	// ErrDiscriminator is returned when a buffer holds a different account type.
	ErrDiscriminator = errors.New("account discriminator mismatch")

	bankDiscriminator    = discriminator("Bank")
	accountDiscriminator = discriminator("MarginfiAccount")
	priceDiscriminator   = discriminator("PriceUpdateV2")
)

// Byte offsets used to filter program accounts by field.
const (
	BankGroupOffset        = discriminatorLength + 32 + 1
	AccountGroupOffset     = discriminatorLength
	AccountAuthorityOffset = discriminatorLength + 32
)

// BankDiscriminator returns the prefix of every bank account.
func BankDiscriminator() []byte {
	return bytes.Clone(bankDiscriminator)
}

// AccountDiscriminator returns the prefix of every margin account.
func AccountDiscriminator() []byte {
	return bytes.Clone(accountDiscriminator)
}

func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:discriminatorLength]
}

func decode(data, disc []byte, v any) error {
	if len(data) < discriminatorLength {
		return fmt.Errorf("buffer too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:discriminatorLength], disc) {
		return ErrDiscriminator
	}
	return bin.NewBorshDecoder(data[discriminatorLength:]).Decode(v)
}

func encode(disc []byte, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc)
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBank decodes a bank account. The token symbol is not stored on chain
// and is left empty.
func DecodeBank(address entity.Address, data []byte) (*entity.Bank, error) {
	var l bankLayout
	if err := decode(data, bankDiscriminator, &l); err != nil {
		return nil, fmt.Errorf("failed to decode bank %s: %w", address, err)
	}

	keys := make([]entity.Address, 0, maxOracleKeys)
	for _, k := range l.Config.OracleKeys {
		if k != ([32]byte{}) {
			keys = append(keys, entity.Address(k))
		}
	}
	ir := l.Config.InterestRateConfig

	return &entity.Bank{
		Address:              address,
		Group:                entity.Address(l.Group),
		Mint:                 entity.Address(l.Mint),
		MintDecimals:         l.MintDecimals,
		AssetShareValue:      l.AssetShareValue.Decimal(),
		LiabilityShareValue:  l.LiabilityShareValue.Decimal(),
		TotalAssetShares:     l.TotalAssetShares.Decimal(),
		TotalLiabilityShares: l.TotalLiabilityShares.Decimal(),
		LastUpdate:           l.LastUpdate,
		Config: entity.BankConfig{
			AssetWeightInit:      l.Config.AssetWeightInit.Decimal(),
			AssetWeightMaint:     l.Config.AssetWeightMaint.Decimal(),
			LiabilityWeightInit:  l.Config.LiabilityWeightInit.Decimal(),
			LiabilityWeightMaint: l.Config.LiabilityWeightMaint.Decimal(),
			DepositLimit:         fromUint64(l.Config.DepositLimit),
			BorrowLimit:          fromUint64(l.Config.BorrowLimit),
			InterestRate: entity.InterestRateConfig{
				OptimalUtilizationRate: ir.OptimalUtilizationRate.Decimal(),
				PlateauInterestRate:    ir.PlateauInterestRate.Decimal(),
				MaxInterestRate:        ir.MaxInterestRate.Decimal(),
				InsuranceFeeFixedApr:   ir.InsuranceFeeFixedApr.Decimal(),
				InsuranceIrFee:         ir.InsuranceIrFee.Decimal(),
				ProtocolFixedFeeApr:    ir.ProtocolFixedFeeApr.Decimal(),
				ProtocolIrFee:          ir.ProtocolIrFee.Decimal(),
			},
			OperationalState:         entity.OperationalState(l.Config.OperationalState),
			OracleSetup:              entity.OracleSetup(l.Config.OracleSetup),
			OracleKeys:               keys,
			OracleMaxAge:             l.Config.OracleMaxAge,
			RiskTier:                 entity.RiskTier(l.Config.RiskTier),
			TotalAssetValueInitLimit: fromUint64(l.Config.TotalAssetValueInitLimit),
		},
	}, nil
}

// EncodeBank is the inverse of DecodeBank.
func EncodeBank(b *entity.Bank) ([]byte, error) {
	if len(b.Config.OracleKeys) > maxOracleKeys {
		return nil, fmt.Errorf("too many oracle keys: %d", len(b.Config.OracleKeys))
	}
	var keys [maxOracleKeys][32]byte
	for i, k := range b.Config.OracleKeys {
		keys[i] = k
	}
	ir := b.Config.InterestRate

	l := bankLayout{
		Mint:                 b.Mint,
		MintDecimals:         b.MintDecimals,
		Group:                b.Group,
		AssetShareValue:      FromDecimal(b.AssetShareValue),
		LiabilityShareValue:  FromDecimal(b.LiabilityShareValue),
		TotalLiabilityShares: FromDecimal(b.TotalLiabilityShares),
		TotalAssetShares:     FromDecimal(b.TotalAssetShares),
		LastUpdate:           b.LastUpdate,
		Config: bankConfigLayout{
			AssetWeightInit:      FromDecimal(b.Config.AssetWeightInit),
			AssetWeightMaint:     FromDecimal(b.Config.AssetWeightMaint),
			LiabilityWeightInit:  FromDecimal(b.Config.LiabilityWeightInit),
			LiabilityWeightMaint: FromDecimal(b.Config.LiabilityWeightMaint),
			DepositLimit:         b.Config.DepositLimit.BigInt().Uint64(),
			InterestRateConfig: interestRateConfigLayout{
				OptimalUtilizationRate: FromDecimal(ir.OptimalUtilizationRate),
				PlateauInterestRate:    FromDecimal(ir.PlateauInterestRate),
				MaxInterestRate:        FromDecimal(ir.MaxInterestRate),
				InsuranceFeeFixedApr:   FromDecimal(ir.InsuranceFeeFixedApr),
				InsuranceIrFee:         FromDecimal(ir.InsuranceIrFee),
				ProtocolFixedFeeApr:    FromDecimal(ir.ProtocolFixedFeeApr),
				ProtocolIrFee:          FromDecimal(ir.ProtocolIrFee),
			},
			OperationalState:         uint8(b.Config.OperationalState),
			OracleSetup:              uint8(b.Config.OracleSetup),
			OracleKeys:               keys,
			BorrowLimit:              b.Config.BorrowLimit.BigInt().Uint64(),
			RiskTier:                 uint8(b.Config.RiskTier),
			TotalAssetValueInitLimit: b.Config.TotalAssetValueInitLimit.BigInt().Uint64(),
			OracleMaxAge:             b.Config.OracleMaxAge,
		},
	}
	return encode(bankDiscriminator, &l)
}

// DecodeAccount decodes a margin account.
func DecodeAccount(address entity.Address, data []byte) (*entity.MarginAccount, error) {
	var l accountLayout
	if err := decode(data, accountDiscriminator, &l); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", address, err)
	}

	acc := &entity.MarginAccount{
		Address:   address,
		Group:     entity.Address(l.Group),
		Authority: entity.Address(l.Authority),
		Balances:  make([]entity.Balance, 0, len(l.Balances)),
	}
	for _, b := range l.Balances {
		acc.Balances = append(acc.Balances, entity.Balance{
			Active:          b.Active,
			BankAddress:     entity.Address(b.BankPk),
			AssetShares:     b.AssetShares.Decimal(),
			LiabilityShares: b.LiabilityShares.Decimal(),
			LastUpdate:      int64(b.LastUpdate),
		})
	}
	return acc, nil
}

// EncodeAccount is the inverse of DecodeAccount.
func EncodeAccount(a *entity.MarginAccount) ([]byte, error) {
	if len(a.Balances) > entity.MaxBalances {
		return nil, fmt.Errorf("too many balances: %d", len(a.Balances))
	}
	l := accountLayout{Group: a.Group, Authority: a.Authority}
	for i, b := range a.Balances {
		l.Balances[i] = balanceLayout{
			Active:          b.Active,
			BankPk:          b.BankAddress,
			AssetShares:     FromDecimal(b.AssetShares),
			LiabilityShares: FromDecimal(b.LiabilityShares),
			LastUpdate:      uint64(b.LastUpdate),
		}
	}
	return encode(accountDiscriminator, &l)
}

// DecodePrice decodes a push-oracle price update account.
func DecodePrice(data []byte) (entity.OraclePrice, error) {
	var l priceLayout
	if err := decode(data, priceDiscriminator, &l); err != nil {
		return entity.OraclePrice{}, fmt.Errorf("failed to decode price: %w", err)
	}
	return entity.OraclePrice{
		Price:      decimal.New(l.Price, l.Exponent),
		Confidence: decimal.NewFromBigInt(new(big.Int).SetUint64(l.Conf), l.Exponent),
		Timestamp:  time.Unix(l.PublishTime, 0).UTC(),
	}, nil
}

// EncodePrice encodes p with the given exponent.
func EncodePrice(feed entity.Address, p entity.OraclePrice, exponent int32) ([]byte, error) {
	shift := decimal.New(1, -exponent)
	l := priceLayout{
		FeedID:      feed,
		Price:       p.Price.Mul(shift).Round(0).IntPart(),
		Conf:        uint64(p.Confidence.Mul(shift).Round(0).IntPart()),
		Exponent:    exponent,
		PublishTime: p.Timestamp.Unix(),
	}
	return encode(priceDiscriminator, &l)
}
