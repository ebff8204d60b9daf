package main

import (
	"strings"
	"testing"
)

const (
	testWallet = "So11111111111111111111111111111111111111112"
	testRPC    = "https://rpc.example.com"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		wantAddr    string
		wantRPC     string
		wantDB      string
		wantFee     uint64
		wantProgram string
		wantError   string
	}{
		{
			name:        "flags",
			args:        []string{"-rpc", testRPC, "-wallet", testWallet, "-addr", ":9000", "-db", "postgres://localhost/trade"},
			wantAddr:    ":9000",
			wantRPC:     testRPC,
			wantDB:      "postgres://localhost/trade",
			wantProgram: defaultProgramID,
		},
		{
			name:        "env vars",
			envVars:     map[string]string{"RPC_URL": testRPC, "WALLET": testWallet, "PRIORITY_FEE_MICRO_LAMPORTS": "5000"},
			wantAddr:    ":8080",
			wantRPC:     testRPC,
			wantFee:     5000,
			wantProgram: defaultProgramID,
		},
		{
			name:        "flag takes precedence over env var",
			args:        []string{"-rpc", "https://cli.example.com"},
			envVars:     map[string]string{"RPC_URL": testRPC, "WALLET": testWallet},
			wantAddr:    ":8080",
			wantRPC:     "https://cli.example.com",
			wantProgram: defaultProgramID,
		},
		{
			name:        "program override",
			envVars:     map[string]string{"RPC_URL": testRPC, "WALLET": testWallet, "PROGRAM_ID": testWallet},
			wantAddr:    ":8080",
			wantRPC:     testRPC,
			wantProgram: testWallet,
		},
		{
			name:      "missing rpc",
			args:      []string{"-wallet", testWallet},
			wantError: "RPC URL not provided",
		},
		{
			name:      "missing wallet",
			args:      []string{"-rpc", testRPC},
			wantError: "wallet not provided",
		},
		{
			name:      "invalid wallet",
			args:      []string{"-rpc", testRPC, "-wallet", "not-base58"},
			wantError: "invalid wallet",
		},
		{
			name:      "invalid quote mint",
			args:      []string{"-rpc", testRPC, "-wallet", testWallet},
			envVars:   map[string]string{"QUOTE_MINT": "abc"},
			wantError: "invalid QUOTE_MINT",
		},
		{
			name:      "negative priority fee",
			args:      []string{"-rpc", testRPC, "-wallet", testWallet},
			envVars:   map[string]string{"PRIORITY_FEE_MICRO_LAMPORTS": "-1"},
			wantError: "must be non-negative",
		},
		{
			name:      "invalid flag",
			args:      []string{"--nonexistent"},
			wantError: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Empty values fall back to defaults in env.Get.
			for _, k := range []string{"RPC_URL", "WALLET", "HTTP_ADDR", "DATABASE_URL", "PROGRAM_ID", "QUOTE_MINT", "PRIORITY_FEE_MICRO_LAMPORTS"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := parseConfig(tt.args)

			if tt.wantError != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantError)
				}
				if !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %q", tt.wantError, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.addr != tt.wantAddr {
				t.Errorf("addr: expected %q, got %q", tt.wantAddr, cfg.addr)
			}
			if cfg.rpcURL != tt.wantRPC {
				t.Errorf("rpcURL: expected %q, got %q", tt.wantRPC, cfg.rpcURL)
			}
			if cfg.dbURL != tt.wantDB {
				t.Errorf("dbURL: expected %q, got %q", tt.wantDB, cfg.dbURL)
			}
			if cfg.priorityFee != tt.wantFee {
				t.Errorf("priorityFee: expected %d, got %d", tt.wantFee, cfg.priorityFee)
			}
			if cfg.wallet.String() != testWallet {
				t.Errorf("wallet: expected %s, got %s", testWallet, cfg.wallet)
			}
			if cfg.programID.String() != tt.wantProgram {
				t.Errorf("programID: expected %s, got %s", tt.wantProgram, cfg.programID)
			}
			if cfg.quoteMint.String() != defaultQuoteMint {
				t.Errorf("quoteMint: expected %s, got %s", defaultQuoteMint, cfg.quoteMint)
			}
			if cfg.broadcastType != "RPC" {
				t.Errorf("broadcastType: expected RPC, got %q", cfg.broadcastType)
			}
		})
	}
}
