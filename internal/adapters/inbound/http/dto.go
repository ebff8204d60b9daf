package http

import (
	"fmt"
	"time"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/inbound"
)

type positionResponse struct {
	IsLending        bool     `json:"isLending"`
	Amount           float64  `json:"amount"`
	USDValue         float64  `json:"usdValue"`
	LiquidationPrice *float64 `json:"liquidationPrice,omitempty"`
	PoorHealth       bool     `json:"poorHealth"`
}

type bankResponse struct {
	Address            entity.Address       `json:"address"`
	Meta               entity.TokenMetadata `json:"meta"`
	Mint               entity.Address       `json:"mint"`
	MintDecimals       uint8                `json:"mintDecimals"`
	Price              float64              `json:"price"`
	LendingRate        float64              `json:"lendingRate"`
	BorrowingRate      float64              `json:"borrowingRate"`
	TotalDeposits      float64              `json:"totalDeposits"`
	TotalBorrows       float64              `json:"totalBorrows"`
	AvailableLiquidity float64              `json:"availableLiquidity"`
	UtilizationRate    float64              `json:"utilizationRate"`
	OperationalState   string               `json:"operationalState"`
	Oracle             string               `json:"oracle"`
	IsIsolated         bool                 `json:"isIsolated"`
	Position           *positionResponse    `json:"position,omitempty"`
}

func newBankResponse(info *entity.ExtendedBankInfo) bankResponse {
	resp := bankResponse{
		Address:            info.Address,
		Meta:               info.Meta,
		Mint:               info.State.Mint,
		MintDecimals:       info.State.MintDecimals,
		Price:              info.State.Price,
		LendingRate:        info.State.LendingRate,
		BorrowingRate:      info.State.BorrowingRate,
		TotalDeposits:      info.State.TotalDeposits,
		TotalBorrows:       info.State.TotalBorrows,
		AvailableLiquidity: info.State.AvailableLiquidity,
		UtilizationRate:    info.State.UtilizationRate,
		OperationalState:   info.State.OperationalState.String(),
		Oracle:             info.State.OracleProviderName,
		IsIsolated:         info.State.IsIsolated,
	}
	if info.IsActive() {
		resp.Position = &positionResponse{
			IsLending:        info.Position.IsLending,
			Amount:           info.Position.Amount,
			USDValue:         info.Position.USDValue,
			LiquidationPrice: info.Position.LiquidationPrice,
			PoorHealth:       info.IsPositionPoorHealth(),
		}
	}
	return resp
}

func newBankResponses(infos []*entity.ExtendedBankInfo) []bankResponse {
	out := make([]bankResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, newBankResponse(info))
	}
	return out
}

type activeGroupResponse struct {
	Group entity.Address `json:"group"`
	Token bankResponse   `json:"token"`
	Quote bankResponse   `json:"quote"`
}

func newActiveGroupResponse(g *entity.ActiveGroup) *activeGroupResponse {
	if g == nil || g.Token == nil || g.Quote == nil {
		return nil
	}
	return &activeGroupResponse{
		Group: g.Group,
		Token: newBankResponse(g.Token),
		Quote: newBankResponse(g.Quote),
	}
}

type summaryResponse struct {
	HealthFactor    float64           `json:"healthFactor"`
	HealthTier      entity.HealthTier `json:"healthTier"`
	Balance         float64           `json:"balance"`
	LendingAmount   float64           `json:"lendingAmount"`
	BorrowingAmount float64           `json:"borrowingAmount"`
	FreeCollateral  float64           `json:"freeCollateral"`
}

func newSummaryResponse(s *entity.AccountSummary) *summaryResponse {
	if s == nil {
		return nil
	}
	hf := s.HealthFactor
	return &summaryResponse{
		HealthFactor:    hf,
		HealthTier:      entity.HealthTierFor(&hf),
		Balance:         s.Balance,
		LendingAmount:   s.LendingAmount,
		BorrowingAmount: s.BorrowingAmount,
		FreeCollateral:  s.FreeCollateral,
	}
}

type stateResponse struct {
	Initialized    bool                 `json:"initialized"`
	Wallet         *entity.Address      `json:"wallet,omitempty"`
	Banks          []bankResponse       `json:"banks"`
	QuoteBanks     []bankResponse       `json:"quoteBanks"`
	ActiveGroup    *activeGroupResponse `json:"activeGroup,omitempty"`
	AccountSummary *summaryResponse     `json:"accountSummary,omitempty"`
	FetchedAt      *time.Time           `json:"fetchedAt,omitempty"`
}

func newStateResponse(v inbound.StateView) stateResponse {
	resp := stateResponse{
		Initialized:    v.Initialized,
		Banks:          newBankResponses(v.Banks),
		QuoteBanks:     newBankResponses(v.QuoteBanks),
		ActiveGroup:    newActiveGroupResponse(v.ActiveGroup),
		AccountSummary: newSummaryResponse(v.AccountSummary),
	}
	if !v.Wallet.IsZero() {
		wallet := v.Wallet
		resp.Wallet = &wallet
	}
	if !v.FetchedAt.IsZero() {
		fetched := v.FetchedAt
		resp.FetchedAt = &fetched
	}
	return resp
}

type transactionRequest struct {
	Label string `json:"label"`
	Data  []byte `json:"data"`
}

type quoteRequest struct {
	InAmount       string  `json:"inAmount"`
	OutAmount      string  `json:"outAmount"`
	PriceImpactPct float64 `json:"priceImpactPct"`
	SlippageBps    int     `json:"slippageBps"`
	PlatformFeeBps *int    `json:"platformFeeBps,omitempty"`
}

type bundleRequest struct {
	ActionTxn           *transactionRequest  `json:"actionTxn,omitempty"`
	AdditionalTxns      []transactionRequest `json:"additionalTxns,omitempty"`
	ActionQuote         *quoteRequest        `json:"actionQuote,omitempty"`
	BorrowAmount        float64              `json:"borrowAmount"`
	ActualDepositAmount float64              `json:"actualDepositAmount"`
}

type actionRequest struct {
	Amount string         `json:"amount"`
	Side   string         `json:"side"`
	Bundle *bundleRequest `json:"bundle,omitempty"`
}

func (r actionRequest) toInbound() (inbound.ActionRequest, error) {
	side, err := entity.ParseTradeSide(r.Side)
	if err != nil {
		return inbound.ActionRequest{}, err
	}
	req := inbound.ActionRequest{Amount: r.Amount, Side: side}
	if r.Bundle == nil {
		return req, nil
	}

	b := &entity.ActionBundle{
		BorrowAmount:        r.Bundle.BorrowAmount,
		ActualDepositAmount: r.Bundle.ActualDepositAmount,
	}
	if r.Bundle.ActionTxn != nil {
		if len(r.Bundle.ActionTxn.Data) == 0 {
			return inbound.ActionRequest{}, fmt.Errorf("action transaction has no data")
		}
		b.ActionTxn = &entity.Transaction{Label: r.Bundle.ActionTxn.Label, Data: r.Bundle.ActionTxn.Data}
	}
	for i, tx := range r.Bundle.AdditionalTxns {
		if len(tx.Data) == 0 {
			return inbound.ActionRequest{}, fmt.Errorf("additional transaction %d has no data", i)
		}
		b.AdditionalTxns = append(b.AdditionalTxns, entity.Transaction{Label: tx.Label, Data: tx.Data})
	}
	if q := r.Bundle.ActionQuote; q != nil {
		b.ActionQuote = &entity.Quote{
			InAmount:       q.InAmount,
			OutAmount:      q.OutAmount,
			PriceImpactPct: q.PriceImpactPct,
			SlippageBps:    q.SlippageBps,
			PlatformFeeBps: q.PlatformFeeBps,
		}
	}
	req.Bundle = b
	return req, nil
}

type statResponse struct {
	TokenPositionAmount float64  `json:"tokenPositionAmount"`
	QuotePositionAmount float64  `json:"quotePositionAmount"`
	HealthFactor        float64  `json:"healthFactor"`
	LiquidationPrice    *float64 `json:"liquidationPrice,omitempty"`
	FreeCollateral      float64  `json:"freeCollateral"`
}

func newStatResponse(s entity.StatResult) statResponse {
	return statResponse{
		TokenPositionAmount: s.TokenPositionAmount,
		QuotePositionAmount: s.QuotePositionAmount,
		HealthFactor:        s.HealthFactor,
		LiquidationPrice:    s.LiquidationPrice,
		FreeCollateral:      s.FreeCollateral,
	}
}

type tradeStatsResponse struct {
	EntryPrice                float64                 `json:"entryPrice"`
	CurrentLiquidationPrice   *float64                `json:"currentLiquidationPrice,omitempty"`
	SimulatedLiquidationPrice *float64                `json:"simulatedLiquidationPrice,omitempty"`
	ShowLiquidationComparison bool                    `json:"showLiquidationComparison"`
	SlippageBps               *int                    `json:"slippageBps,omitempty"`
	SlippageAlert             bool                    `json:"slippageAlert"`
	PlatformFeeBps            *int                    `json:"platformFeeBps,omitempty"`
	PriceImpactPct            *float64                `json:"priceImpactPct,omitempty"`
	PriceImpactLevel          entity.PriceImpactLevel `json:"priceImpactLevel"`
	Oracle                    string                  `json:"oracle"`
	TotalDeposits             *float64                `json:"totalDeposits,omitempty"`
	TotalBorrows              *float64                `json:"totalBorrows,omitempty"`
	Current                   statResponse            `json:"current"`
	Simulated                 *statResponse           `json:"simulated,omitempty"`
}

func newTradeStatsResponse(s entity.TradeStats) tradeStatsResponse {
	resp := tradeStatsResponse{
		EntryPrice:                s.EntryPrice,
		CurrentLiquidationPrice:   s.CurrentLiquidationPrice,
		SimulatedLiquidationPrice: s.SimulatedLiquidationPrice,
		ShowLiquidationComparison: s.ShowLiquidationComparison,
		SlippageBps:               s.SlippageBps,
		SlippageAlert:             s.SlippageAlert,
		PlatformFeeBps:            s.PlatformFeeBps,
		PriceImpactPct:            s.PriceImpactPct,
		PriceImpactLevel:          s.PriceImpactLevel,
		Oracle:                    s.Oracle,
		TotalDeposits:             s.TotalDeposits,
		TotalBorrows:              s.TotalBorrows,
		Current:                   newStatResponse(s.Current),
	}
	if s.Simulated != nil {
		sim := newStatResponse(*s.Simulated)
		resp.Simulated = &sim
	}
	return resp
}

type previewResponse struct {
	Messages        []entity.ActionMessage `json:"messages"`
	Stats           tradeStatsResponse     `json:"stats"`
	SimulationError string                 `json:"simulationError,omitempty"`
}

type stepResponse struct {
	Label   string            `json:"label"`
	Status  entity.StepStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

func newStepResponses(steps []entity.Step) []stepResponse {
	out := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, stepResponse{Label: s.Label, Status: s.Status, Message: s.Message})
	}
	return out
}

type txRecordResponse struct {
	ID         string           `json:"id"`
	Kind       entity.TxKind    `json:"kind"`
	Group      entity.Address   `json:"group"`
	TokenBank  entity.Address   `json:"tokenBank"`
	QuoteBank  entity.Address   `json:"quoteBank"`
	Side       entity.TradeSide `json:"side"`
	Amount     float64          `json:"amount"`
	Signatures []string         `json:"signatures"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func newTxRecordResponse(r *entity.TxRecord) txRecordResponse {
	return txRecordResponse{
		ID:         r.ID.String(),
		Kind:       r.Kind,
		Group:      r.Group,
		TokenBank:  r.TokenBank,
		QuoteBank:  r.QuoteBank,
		Side:       r.Side,
		Amount:     r.Amount,
		Signatures: r.Signatures,
		CreatedAt:  r.CreatedAt,
	}
}

type loopResponse struct {
	Signatures []string          `json:"signatures"`
	Record     *txRecordResponse `json:"record,omitempty"`
	Steps      []stepResponse    `json:"steps"`
}

type loopErrorResponse struct {
	Error      string         `json:"error"`
	Signatures []string       `json:"signatures,omitempty"`
	Steps      []stepResponse `json:"steps,omitempty"`
}

type blockedResponse struct {
	Error    string                 `json:"error"`
	Messages []entity.ActionMessage `json:"messages"`
}
