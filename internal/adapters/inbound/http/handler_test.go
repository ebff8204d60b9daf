package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/inbound"
	"github.com/archon-research/stl-trade/internal/services/trade_executor"
	"github.com/archon-research/stl-trade/internal/services/trade_store"
	"github.com/archon-research/stl-trade/internal/services/trading"
)

func addr(n byte) entity.Address {
	var a entity.Address
	a[0] = n
	a[31] = 0x5A
	return a
}

// mockService implements inbound.TradeService.
type mockService struct {
	state      inbound.StateView
	selectErr  error
	selected   entity.Address
	lastReq    inbound.ActionRequest
	messages   []entity.ActionMessage
	preview    *inbound.ActionPreview
	previewErr error
	loop       *inbound.LoopResult
	loopErr    error
	history    []*entity.TxRecord
	historyErr error
	limit      int
	refreshErr error
}

func (m *mockService) State() inbound.StateView { return m.state }

func (m *mockService) SelectBank(ctx context.Context, bank entity.Address) error {
	m.selected = bank
	return m.selectErr
}

func (m *mockService) CheckAction(ctx context.Context, req inbound.ActionRequest) []entity.ActionMessage {
	m.lastReq = req
	return m.messages
}

func (m *mockService) PreviewAction(ctx context.Context, req inbound.ActionRequest) (*inbound.ActionPreview, error) {
	m.lastReq = req
	return m.preview, m.previewErr
}

func (m *mockService) ExecuteLoop(ctx context.Context, req inbound.ActionRequest) (*inbound.LoopResult, error) {
	m.lastReq = req
	return m.loop, m.loopErr
}

func (m *mockService) History(ctx context.Context, limit int) ([]*entity.TxRecord, error) {
	m.limit = limit
	return m.history, m.historyErr
}

func (m *mockService) Refresh(ctx context.Context) error { return m.refreshErr }

func sampleState() inbound.StateView {
	liq := 90.0
	token := &entity.ExtendedBankInfo{
		Address:  addr(11),
		Meta:     entity.TokenMetadata{Symbol: "SOL"},
		State:    entity.BankState{Price: 150, OperationalState: entity.OperationalStateOperational},
		Position: &entity.Position{IsLending: true, Amount: 10, USDValue: 1500, LiquidationPrice: &liq},
	}
	quote := &entity.ExtendedBankInfo{
		Address: addr(12),
		Meta:    entity.TokenMetadata{Symbol: "USDC"},
		State:   entity.BankState{Price: 1, OperationalState: entity.OperationalStateOperational},
	}
	return inbound.StateView{
		Initialized:    true,
		Wallet:         addr(201),
		Banks:          []*entity.ExtendedBankInfo{token},
		QuoteBanks:     []*entity.ExtendedBankInfo{quote},
		ActiveGroup:    &entity.ActiveGroup{Group: addr(10), Token: token, Quote: quote},
		AccountSummary: &entity.AccountSummary{HealthFactor: 0.6, Balance: 1000},
		FetchedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func serve(t *testing.T, svc inbound.TradeService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	NewHandler(svc, nil).Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

const loopBody = `{"amount":"1.5","side":"long","bundle":{"actionTxn":{"label":"loop","data":"AQ=="},"additionalTxns":[{"label":"crank","data":"Ag=="}],"actionQuote":{"slippageBps":50,"priceImpactPct":0.002}}}`

func TestHandler_State(t *testing.T) {
	w := serve(t, &mockService{state: sampleState()}, http.MethodGet, "/api/v1/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	var resp stateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Initialized || resp.Wallet == nil || *resp.Wallet != addr(201) {
		t.Errorf("unexpected state %+v", resp)
	}
	if len(resp.Banks) != 1 || resp.Banks[0].Position == nil || !resp.Banks[0].Position.IsLending {
		t.Errorf("unexpected banks %+v", resp.Banks)
	}
	if resp.Banks[0].OperationalState != "Operational" {
		t.Errorf("unexpected operational state %q", resp.Banks[0].OperationalState)
	}
	if resp.AccountSummary == nil || resp.AccountSummary.HealthTier != entity.HealthTierGood {
		t.Errorf("unexpected summary %+v", resp.AccountSummary)
	}
	if resp.ActiveGroup == nil || resp.ActiveGroup.Quote.Address != addr(12) {
		t.Errorf("unexpected active group %+v", resp.ActiveGroup)
	}
}

func TestHandler_ActiveGroup(t *testing.T) {
	if w := serve(t, &mockService{}, http.MethodGet, "/api/v1/active-group", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a selection, got %d", w.Code)
	}
	if w := serve(t, &mockService{state: sampleState()}, http.MethodGet, "/api/v1/active-group", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHandler_SelectBank(t *testing.T) {
	bank := addr(11).String()

	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{name: "selected", body: `{"bank":"` + bank + `"}`, wantCode: http.StatusOK},
		{name: "malformed address", body: `{"bank":"not-base58!"}`, wantCode: http.StatusBadRequest},
		{name: "missing bank", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"bank":"` + bank + `","extra":1}`, wantCode: http.StatusBadRequest},
		{name: "unknown bank", body: `{"bank":"` + bank + `"}`, err: trade_store.ErrBankNotFound, wantCode: http.StatusNotFound},
		{name: "superseded", body: `{"bank":"` + bank + `"}`, err: trade_store.ErrSuperseded, wantCode: http.StatusConflict},
		{name: "disposed", body: `{"bank":"` + bank + `"}`, err: trade_store.ErrDisposed, wantCode: http.StatusServiceUnavailable},
		{name: "fetch failed", body: `{"bank":"` + bank + `"}`, err: &trade_store.FetchError{Stage: "client", Err: errors.New("timeout")}, wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{state: sampleState(), selectErr: tt.err}
			w := serve(t, svc, http.MethodPost, "/api/v1/active-bank", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode == http.StatusOK && svc.selected != addr(11) {
				t.Errorf("expected bank %s to be selected, got %s", addr(11), svc.selected)
			}
		})
	}
}

func TestHandler_CheckAction(t *testing.T) {
	svc := &mockService{messages: []entity.ActionMessage{entity.Blocking(entity.CodeInvalidAmount, "Enter an amount greater than zero.")}}
	w := serve(t, svc, http.MethodPost, "/api/v1/actions/check", loopBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if svc.lastReq.Side != entity.TradeSideLong || svc.lastReq.Amount != "1.5" {
		t.Errorf("unexpected request %+v", svc.lastReq)
	}
	b := svc.lastReq.Bundle
	if b == nil || b.ActionTxn == nil || b.ActionTxn.Data[0] != 1 || len(b.AdditionalTxns) != 1 || b.ActionQuote.SlippageBps != 50 {
		t.Fatalf("unexpected bundle %+v", b)
	}

	msgs, ok := decodeBody(t, w)["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", msgs)
	}
}

func TestHandler_ActionValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad side", body: `{"amount":"1","side":"sideways"}`},
		{name: "empty action data", body: `{"amount":"1","side":"long","bundle":{"actionTxn":{"label":"loop"}}}`},
		{name: "not json", body: `amount=1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(t, &mockService{}, http.MethodPost, "/api/v1/actions/check", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHandler_PreviewAction(t *testing.T) {
	sim := entity.StatResult{HealthFactor: 0.4}
	svc := &mockService{preview: &inbound.ActionPreview{
		Messages:        []entity.ActionMessage{entity.Allowed()},
		Stats:           entity.TradeStats{EntryPrice: 150, PriceImpactLevel: entity.PriceImpactOK, Simulated: &sim},
		SimulationError: "",
	}}
	w := serve(t, svc, http.MethodPost, "/api/v1/actions/simulate", loopBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp previewResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.EntryPrice != 150 || resp.Stats.Simulated == nil || resp.Stats.Simulated.HealthFactor != 0.4 {
		t.Errorf("unexpected stats %+v", resp.Stats)
	}

	svc = &mockService{previewErr: errors.New("decode failure")}
	if w := serve(t, svc, http.MethodPost, "/api/v1/actions/simulate", loopBody); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandler_ExecuteLoop(t *testing.T) {
	record, err := entity.NewTxRecord(entity.TxKindLoop, addr(201), addr(10), addr(11), addr(12), entity.TradeSideLong, 1.5, []string{"sig-1"}, time.Now())
	if err != nil {
		t.Fatalf("NewTxRecord: %v", err)
	}
	failedSteps := []entity.Step{{Label: "Executing looping SOL with USDC", Status: entity.StepFailed, Message: "The transaction failed on chain."}}

	tests := []struct {
		name      string
		result    *inbound.LoopResult
		err       error
		wantCode  int
		wantError string
	}{
		{
			name: "confirmed",
			result: &inbound.LoopResult{
				Signatures: []string{"sig-1"},
				Record:     record,
				Steps:      []entity.Step{{Label: "Executing looping SOL with USDC", Status: entity.StepSuccess}},
			},
			wantCode: http.StatusOK,
		},
		{
			name:      "blocked",
			err:       &trading.BlockedError{Messages: []entity.ActionMessage{entity.Blocking(entity.CodeBankPaused, "paused")}},
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "action blocked",
		},
		{
			name:      "failed on chain",
			err:       &trade_executor.TransactionError{Message: "The transaction failed on chain.", Steps: failedSteps, Err: errors.New("boom")},
			wantCode:  http.StatusBadGateway,
			wantError: "The transaction failed on chain.",
		},
		{
			name:     "client not ready",
			err:      trade_executor.ErrClientNotReady,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "unexpected",
			err:      errors.New("invalid amount"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &mockService{loop: tt.result, loopErr: tt.err}, http.MethodPost, "/api/v1/actions/loop", loopBody)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("expected error %q, got %v", tt.wantError, body["error"])
			}
			if tt.wantCode == http.StatusOK {
				rec, ok := body["record"].(map[string]any)
				if !ok || rec["id"] != record.ID.String() || rec["kind"] != "LOOP" {
					t.Errorf("unexpected record %v", body["record"])
				}
			}
		})
	}
}

func TestHandler_History(t *testing.T) {
	record, err := entity.NewTxRecord(entity.TxKindLoop, addr(201), addr(10), addr(11), addr(12), entity.TradeSideShort, 3, []string{"sig-9"}, time.Now())
	if err != nil {
		t.Fatalf("NewTxRecord: %v", err)
	}

	tests := []struct {
		name      string
		query     string
		err       error
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", wantCode: http.StatusOK},
		{name: "explicit limit", query: "?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "bad limit", query: "?limit=abc", wantCode: http.StatusBadRequest},
		{name: "negative limit", query: "?limit=-1", wantCode: http.StatusBadRequest},
		{name: "not configured", err: trading.ErrNoHistory, wantCode: http.StatusNotImplemented},
		{name: "repository failure", err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{history: []*entity.TxRecord{record}, historyErr: tt.err}
			w := serve(t, svc, http.MethodGet, "/api/v1/history"+tt.query, "")
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if w.Code != http.StatusOK {
				return
			}
			if svc.limit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, svc.limit)
			}
			var out []txRecordResponse
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(out) != 1 || out[0].Side != entity.TradeSideShort {
				t.Errorf("unexpected history %+v", out)
			}
		})
	}
}

func TestHandler_Refresh(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "refreshed", wantCode: http.StatusOK},
		{name: "superseded", err: trade_store.ErrSuperseded, wantCode: http.StatusOK},
		{name: "not initialized", err: trade_store.ErrNotInitialized, wantCode: http.StatusServiceUnavailable},
		{name: "fetch failed", err: &trade_store.FetchError{Stage: "metadata", Err: errors.New("403")}, wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &mockService{state: sampleState(), refreshErr: tt.err}, http.MethodPost, "/api/v1/refresh", "")
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}
