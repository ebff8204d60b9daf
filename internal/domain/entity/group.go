package entity

// ActiveGroup is the selected trading market: the token bank and its quote
// bank, both carrying the wallet's positions.
type ActiveGroup struct {
	Group Address
	Token *ExtendedBankInfo
	Quote *ExtendedBankInfo
}
