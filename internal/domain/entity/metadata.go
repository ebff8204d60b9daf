package entity

import "strings"

// TokenMetadata is static display metadata for a token.
type TokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// BankMetadata is static metadata for a bank, keyed by bank address.
type BankMetadata struct {
	TokenAddress string `json:"tokenAddress"`
	TokenName    string `json:"tokenName"`
	TokenSymbol  string `json:"tokenSymbol"`
}

// TokenMetadataMap holds token metadata keyed by symbol.
type TokenMetadataMap map[string]TokenMetadata

// Lookup finds metadata by symbol, ignoring case.
func (m TokenMetadataMap) Lookup(symbol string) (TokenMetadata, bool) {
	if md, ok := m[symbol]; ok {
		return md, true
	}
	for k, md := range m {
		if strings.EqualFold(k, symbol) {
			return md, true
		}
	}
	return TokenMetadata{}, false
}

// BankMetadataMap holds bank metadata keyed by base58 bank address.
type BankMetadataMap map[string]BankMetadata

// Lookup finds metadata for a bank.
func (m BankMetadataMap) Lookup(bank Address) (BankMetadata, bool) {
	md, ok := m[bank.String()]
	return md, ok
}

// GroupMembers is the [token bank, quote bank] pair of a trading group.
type GroupMembers struct {
	Token Address
	Quote Address
}

// Banks returns the members in token, quote order.
func (g GroupMembers) Banks() []Address {
	return []Address{g.Token, g.Quote}
}

// TradeGroup is one entry of the group membership list.
type TradeGroup struct {
	Group   Address
	Members GroupMembers
}

// TradeGroups is the ordered group membership list.
type TradeGroups []TradeGroup

// Find returns the group that owns bank.
func (g TradeGroups) Find(bank Address) (TradeGroup, bool) {
	for _, tg := range g {
		if tg.Members.Token == bank || tg.Members.Quote == bank {
			return tg, true
		}
	}
	return TradeGroup{}, false
}

// Lookup returns the membership of group.
func (g TradeGroups) Lookup(group Address) (TradeGroup, bool) {
	for _, tg := range g {
		if tg.Group == group {
			return tg, true
		}
	}
	return TradeGroup{}, false
}
