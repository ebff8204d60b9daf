package postgres

import "testing"

func TestNewTxHistoryRepository_NilPool(t *testing.T) {
	if _, err := NewTxHistoryRepository(nil, nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
