package entity

import "github.com/shopspring/decimal"

func testAddr(n byte) Address {
	var a Address
	a[0] = n
	a[31] = n
	return a
}

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func testBank(addr Address, symbol string) *Bank {
	return &Bank{
		Address:              addr,
		Group:                testAddr(200),
		Mint:                 testAddr(addr[0] + 100),
		MintDecimals:         0,
		TokenSymbol:          symbol,
		AssetShareValue:      d(1),
		LiabilityShareValue:  d(1),
		TotalAssetShares:     d(1000),
		TotalLiabilityShares: d(250),
		Config: BankConfig{
			AssetWeightInit:      d(0.75),
			AssetWeightMaint:     d(0.8),
			LiabilityWeightInit:  d(1.3),
			LiabilityWeightMaint: d(1.25),
			OperationalState:     OperationalStateOperational,
			OracleSetup:          OracleSetupPythPushOracle,
			InterestRate: InterestRateConfig{
				OptimalUtilizationRate: d(0.8),
				PlateauInterestRate:    d(0.1),
				MaxInterestRate:        d(1),
			},
		},
	}
}

func price(p float64) OraclePrice {
	return OraclePrice{Price: d(p), Confidence: decimal.Zero}
}
