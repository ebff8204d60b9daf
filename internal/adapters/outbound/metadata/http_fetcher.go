// Package metadata loads the static trade group, token and bank metadata.
//
// Documents are fetched through an outbound.DocumentFetcher (HTTP or S3),
// optionally cached through an outbound.MetadataCache, and parsed into
// domain types by Loader.
package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archon-research/stl-trade/internal/pkg/httpclient"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that HTTPFetcher implements outbound.DocumentFetcher.
var _ outbound.DocumentFetcher = (*HTTPFetcher)(nil)

// HTTPFetcherConfig holds the document URLs.
type HTTPFetcherConfig struct {
	TradeGroupsURL   string
	TokenMetadataURL string
	BankMetadataURL  string

	HTTP   httpclient.Config
	Logger *slog.Logger
}

// HTTPFetcherConfigDefaults returns the public metadata endpoints.
func HTTPFetcherConfigDefaults() HTTPFetcherConfig {
	return HTTPFetcherConfig{
		TradeGroupsURL:   "https://storage.googleapis.com/mrgn-public/mfi-trade-groups.json",
		TokenMetadataURL: "https://storage.googleapis.com/mrgn-public/mfi-trade-metadata-cache.json",
		BankMetadataURL:  "https://storage.googleapis.com/mrgn-public/mfi-bank-metadata-cache.json",
		HTTP:             httpclient.DefaultConfig(),
		Logger:           slog.Default(),
	}
}

// HTTPFetcher fetches metadata documents over HTTP.
type HTTPFetcher struct {
	urls   map[outbound.MetadataDocument]string
	client *httpclient.Client
}

// NewHTTPFetcher creates a new HTTP document fetcher.
func NewHTTPFetcher(config HTTPFetcherConfig) *HTTPFetcher {
	defaults := HTTPFetcherConfigDefaults()
	if config.TradeGroupsURL == "" {
		config.TradeGroupsURL = defaults.TradeGroupsURL
	}
	if config.TokenMetadataURL == "" {
		config.TokenMetadataURL = defaults.TokenMetadataURL
	}
	if config.BankMetadataURL == "" {
		config.BankMetadataURL = defaults.BankMetadataURL
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &HTTPFetcher{
		urls: map[outbound.MetadataDocument]string{
			outbound.DocumentTradeGroups:   config.TradeGroupsURL,
			outbound.DocumentTokenMetadata: config.TokenMetadataURL,
			outbound.DocumentBankMetadata:  config.BankMetadataURL,
		},
		client: httpclient.NewClient(config.HTTP, config.Logger.With("component", "metadata-http")),
	}
}

// FetchDocument downloads doc.
func (f *HTTPFetcher) FetchDocument(ctx context.Context, doc outbound.MetadataDocument) ([]byte, error) {
	url, ok := f.urls[doc]
	if !ok {
		return nil, fmt.Errorf("unknown metadata document %q", doc)
	}
	return f.client.Get(ctx, httpclient.RequestConfig{URL: url})
}
