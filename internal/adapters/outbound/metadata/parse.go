package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// ParseTradeGroups parses `{ "<group>": ["<token bank>", "<quote bank>"] }`.
// Groups are returned sorted by address so fetch order is deterministic.
func ParseTradeGroups(raw []byte) (entity.TradeGroups, error) {
	var doc map[string][]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing trade groups: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("trade groups document is empty")
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make(entity.TradeGroups, 0, len(keys))
	for _, k := range keys {
		group, err := entity.ParseAddress(k)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", k, err)
		}
		members := doc[k]
		if len(members) != 2 {
			return nil, fmt.Errorf("group %s: expected 2 banks, got %d", k, len(members))
		}
		token, err := entity.ParseAddress(members[0])
		if err != nil {
			return nil, fmt.Errorf("group %s token bank: %w", k, err)
		}
		quote, err := entity.ParseAddress(members[1])
		if err != nil {
			return nil, fmt.Errorf("group %s quote bank: %w", k, err)
		}
		groups = append(groups, entity.TradeGroup{
			Group:   group,
			Members: entity.GroupMembers{Token: token, Quote: quote},
		})
	}
	return groups, nil
}

type tokenMetadataEntry struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Image   string `json:"image"`
	LogoURI string `json:"logoURI"`
}

func (e tokenMetadataEntry) toEntity() entity.TokenMetadata {
	image := e.Image
	if image == "" {
		image = e.LogoURI
	}
	return entity.TokenMetadata{Name: e.Name, Symbol: e.Symbol, Image: image}
}

// ParseTokenMetadata accepts either a list of token entries or an object keyed by symbol.
func ParseTokenMetadata(raw []byte) (entity.TokenMetadataMap, error) {
	out := make(entity.TokenMetadataMap)

	if isJSONArray(raw) {
		var list []tokenMetadataEntry
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("parsing token metadata: %w", err)
		}
		for _, e := range list {
			if e.Symbol == "" {
				continue
			}
			out[e.Symbol] = e.toEntity()
		}
		return out, nil
	}

	var byKey map[string]tokenMetadataEntry
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("parsing token metadata: %w", err)
	}
	for k, e := range byKey {
		if e.Symbol == "" {
			e.Symbol = k
		}
		out[k] = e.toEntity()
	}
	return out, nil
}

type bankMetadataEntry struct {
	BankAddress  string `json:"bankAddress"`
	TokenAddress string `json:"tokenAddress"`
	TokenName    string `json:"tokenName"`
	TokenSymbol  string `json:"tokenSymbol"`
}

// ParseBankMetadata accepts either a list of bank entries or an object keyed by bank address.
func ParseBankMetadata(raw []byte) (entity.BankMetadataMap, error) {
	out := make(entity.BankMetadataMap)

	if isJSONArray(raw) {
		var list []bankMetadataEntry
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("parsing bank metadata: %w", err)
		}
		for _, e := range list {
			if e.BankAddress == "" {
				continue
			}
			out[e.BankAddress] = entity.BankMetadata{TokenAddress: e.TokenAddress, TokenName: e.TokenName, TokenSymbol: e.TokenSymbol}
		}
		return out, nil
	}

	var byKey map[string]bankMetadataEntry
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("parsing bank metadata: %w", err)
	}
	for k, e := range byKey {
		out[k] = entity.BankMetadata{TokenAddress: e.TokenAddress, TokenName: e.TokenName, TokenSymbol: e.TokenSymbol}
	}
	return out, nil
}

func isJSONArray(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
