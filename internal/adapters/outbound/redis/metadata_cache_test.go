package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

func TestNewMetadataCache(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantErr    string
		wantTTL    time.Duration
		wantPrefix string
	}{
		{
			name:       "explicit config",
			cfg:        Config{Addr: "localhost:6379", Password: "secret", DB: 1, TTL: time.Hour, KeyPrefix: "test"},
			wantTTL:    time.Hour,
			wantPrefix: "test",
		},
		{
			name:       "applies defaults",
			cfg:        Config{Addr: "localhost:6379"},
			wantTTL:    ConfigDefaults().TTL,
			wantPrefix: ConfigDefaults().KeyPrefix,
		},
		{
			name:    "missing address",
			cfg:     Config{},
			wantErr: "redis address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := NewMetadataCache(tt.cfg, nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer cache.Close()

			if cache.ttl != tt.wantTTL {
				t.Errorf("expected TTL=%v, got %v", tt.wantTTL, cache.ttl)
			}
			if cache.keyPrefix != tt.wantPrefix {
				t.Errorf("expected keyPrefix=%s, got %s", tt.wantPrefix, cache.keyPrefix)
			}
			if cache.logger == nil {
				t.Error("expected logger to be set")
			}
		})
	}
}

func TestMetadataCache_Key(t *testing.T) {
	cache, err := NewMetadataCache(Config{Addr: "localhost:6379", KeyPrefix: "trade"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if got := cache.key(outbound.DocumentBankMetadata); got != "trade:metadata:bank-metadata" {
		t.Errorf("unexpected key %q", got)
	}
}
