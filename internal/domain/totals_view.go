package domain

// TotalsView is cart totals stamped with the version they belong to. A
// speculative view is a local prediction stamped with the version its commit
// would produce.
type TotalsView struct {
	Totals
	Version     uint64 `json:"version"`
	Speculative bool   `json:"speculative"`
}

// Supersede picks what a reader should show after receiving incoming while
// holding current: the higher version wins, and at equal versions a committed
// view replaces a speculative one. Stale results are dropped, never merged.
func Supersede(current, incoming TotalsView) TotalsView {
	switch {
	case incoming.Version > current.Version:
		return incoming
	case incoming.Version < current.Version:
		return current
	case current.Speculative && !incoming.Speculative:
		return incoming
	case !current.Speculative && incoming.Speculative:
		return current
	default:
		return incoming
	}
}
