package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archon-research/stl-trade/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-trade/internal/pkg/httpclient"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

const (
	groupA   = "4qp6Fx6tnZkY5Wropq9wUYgtFxXKwE6viZxFHg3rdAG8"
	groupB   = "11111111111111111111111111111111"
	solBank  = "CCKtUs6Cgwo4aaQUmBPmyoApH2gUDErxNZCAntD6LYGh"
	usdcBank = "2s37akK2eyBbp8DZgCm7RtsaEz8eJP3Nxd4urLHQv7yB"
)

func TestParseTradeGroups(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantGroups  int
		errContains string
	}{
		{
			name:       "two groups sorted",
			raw:        `{"` + groupA + `":["` + solBank + `","` + usdcBank + `"],"` + groupB + `":["` + solBank + `","` + usdcBank + `"]}`,
			wantGroups: 2,
		},
		{name: "empty", raw: `{}`, errContains: "empty"},
		{name: "wrong arity", raw: `{"` + groupA + `":["` + solBank + `"]}`, errContains: "expected 2 banks"},
		{name: "bad address", raw: `{"nope":["` + solBank + `","` + usdcBank + `"]}`, errContains: "group"},
		{name: "not json", raw: `[`, errContains: "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := ParseTradeGroups([]byte(tt.raw))
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(groups) != tt.wantGroups {
				t.Fatalf("expected %d groups, got %d", tt.wantGroups, len(groups))
			}
			if groups[0].Group.String() != groupB {
				t.Errorf("expected groups sorted by address, first is %s", groups[0].Group)
			}
			if groups[0].Members.Token.String() != solBank || groups[0].Members.Quote.String() != usdcBank {
				t.Errorf("unexpected members %+v", groups[0].Members)
			}
		})
	}
}

func TestParseTokenMetadata(t *testing.T) {
	list := `[{"symbol":"SOL","name":"Solana","logoURI":"sol.png"},{"symbol":"","name":"skip"}]`
	got, err := ParseTokenMetadata([]byte(list))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	md, ok := got.Lookup("sol")
	if !ok || md.Image != "sol.png" {
		t.Errorf("case-insensitive lookup failed: %+v %v", md, ok)
	}

	object := `{"USDC":{"name":"USD Coin","image":"usdc.png"}}`
	got, err = ParseTokenMetadata([]byte(object))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md, ok := got.Lookup("usdc"); !ok || md.Symbol != "USDC" {
		t.Errorf("object form lookup failed: %+v %v", md, ok)
	}
}

func TestParseBankMetadata(t *testing.T) {
	list := `[{"bankAddress":"` + solBank + `","tokenSymbol":"SOL"}]`
	got, err := ParseBankMetadata([]byte(list))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[solBank].TokenSymbol != "SOL" {
		t.Errorf("unexpected metadata %+v", got)
	}
}

func TestLoader_UsesCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/groups.json":
			_, _ = w.Write([]byte(`{"` + groupA + `":["` + solBank + `","` + usdcBank + `"]}`))
		case "/tokens.json":
			_, _ = w.Write([]byte(`[{"symbol":"SOL","name":"Solana"}]`))
		case "/banks.json":
			_, _ = w.Write([]byte(`{"` + solBank + `":{"tokenSymbol":"SOL"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.InitialBackoff = time.Millisecond
	fetcher := NewHTTPFetcher(HTTPFetcherConfig{
		TradeGroupsURL:   server.URL + "/groups.json",
		TokenMetadataURL: server.URL + "/tokens.json",
		BankMetadataURL:  server.URL + "/banks.json",
		HTTP:             httpCfg,
	})
	cache := memory.NewMetadataCache(time.Minute)
	loader, err := NewLoader(LoaderConfig{Fetcher: fetcher, Cache: cache})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		groups, err := loader.FetchTradeGroups(ctx)
		if err != nil {
			t.Fatalf("fetch groups: %v", err)
		}
		if len(groups) != 1 {
			t.Fatalf("expected 1 group, got %d", len(groups))
		}
	}
	if _, err := loader.FetchTokenMetadata(ctx); err != nil {
		t.Fatalf("fetch tokens: %v", err)
	}
	banks, err := loader.FetchBankMetadata(ctx)
	if err != nil {
		t.Fatalf("fetch banks: %v", err)
	}
	if banks[solBank].TokenSymbol != "SOL" {
		t.Errorf("unexpected bank metadata %+v", banks)
	}

	if got := hits.Load(); got != 3 {
		t.Errorf("expected 3 upstream requests, got %d", got)
	}
	if cache.Len() != 3 {
		t.Errorf("expected 3 cached documents, got %d", cache.Len())
	}
}

func TestHTTPFetcher_UnknownDocument(t *testing.T) {
	f := NewHTTPFetcher(HTTPFetcherConfig{})
	if _, err := f.FetchDocument(context.Background(), outbound.MetadataDocument("other")); err == nil {
		t.Fatal("expected error for unknown document")
	}
}

func TestNewLoader_RequiresFetcher(t *testing.T) {
	if _, err := NewLoader(LoaderConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
