package outbound

import (
	"context"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// MetadataSource loads the static metadata the store is built from.
type MetadataSource interface {
	// FetchTradeGroups returns the group membership list.
	FetchTradeGroups(ctx context.Context) (entity.TradeGroups, error)

	// FetchTokenMetadata returns token metadata keyed by symbol.
	FetchTokenMetadata(ctx context.Context) (entity.TokenMetadataMap, error)

	// FetchBankMetadata returns bank metadata keyed by bank address.
	FetchBankMetadata(ctx context.Context) (entity.BankMetadataMap, error)
}

// MetadataDocument names one of the static metadata documents.
type MetadataDocument string

const (
	DocumentTradeGroups   MetadataDocument = "trade-groups"
	DocumentTokenMetadata MetadataDocument = "token-metadata"
	DocumentBankMetadata  MetadataDocument = "bank-metadata"
)

// DocumentFetcher retrieves raw metadata documents from where they are hosted.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, doc MetadataDocument) ([]byte, error)
}
