package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that Loader implements outbound.MetadataSource.
var _ outbound.MetadataSource = (*Loader)(nil)

// LoaderConfig holds the collaborators of a Loader.
type LoaderConfig struct {
	// Fetcher retrieves documents. Required.
	Fetcher outbound.DocumentFetcher

	// Cache is optional. Cache failures are logged and otherwise ignored.
	Cache outbound.MetadataCache

	Logger *slog.Logger
}

// Loader parses metadata documents into domain types.
type Loader struct {
	fetcher outbound.DocumentFetcher
	cache   outbound.MetadataCache
	logger  *slog.Logger
}

// NewLoader creates a new metadata loader.
func NewLoader(config LoaderConfig) (*Loader, error) {
	if config.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Loader{
		fetcher: config.Fetcher,
		cache:   config.Cache,
		logger:  config.Logger.With("component", "metadata-loader"),
	}, nil
}

// FetchTradeGroups loads the group membership list.
func (l *Loader) FetchTradeGroups(ctx context.Context) (entity.TradeGroups, error) {
	raw, err := l.document(ctx, outbound.DocumentTradeGroups)
	if err != nil {
		return nil, err
	}
	return ParseTradeGroups(raw)
}

// FetchTokenMetadata loads token metadata keyed by symbol.
func (l *Loader) FetchTokenMetadata(ctx context.Context) (entity.TokenMetadataMap, error) {
	raw, err := l.document(ctx, outbound.DocumentTokenMetadata)
	if err != nil {
		return nil, err
	}
	return ParseTokenMetadata(raw)
}

// FetchBankMetadata loads bank metadata keyed by bank address.
func (l *Loader) FetchBankMetadata(ctx context.Context) (entity.BankMetadataMap, error) {
	raw, err := l.document(ctx, outbound.DocumentBankMetadata)
	if err != nil {
		return nil, err
	}
	return ParseBankMetadata(raw)
}

func (l *Loader) document(ctx context.Context, doc outbound.MetadataDocument) ([]byte, error) {
	if l.cache != nil {
		cached, err := l.cache.Get(ctx, doc)
		if err != nil {
			l.logger.Warn("metadata cache read failed", "document", doc, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	raw, err := l.fetcher.FetchDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", doc, err)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, doc, raw); err != nil {
			l.logger.Warn("metadata cache write failed", "document", doc, "error", err)
		}
	}
	return raw, nil
}
