package entity

// SimulationResult is a detached what-if snapshot produced by simulating a
// transaction bundle. It is never written back into live state.
type SimulationResult struct {
	Banks        BankMap
	OraclePrices PriceMap
	Account      *MarginAccount
}
