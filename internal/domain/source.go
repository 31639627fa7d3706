package domain

// Source identifies the external platform a market's probability is tracked
// from. It is the single shared enum referenced by markets, history points,
// and health records.
type Source string

const (
	SourcePolymarket Source = "polymarket"
	SourceKalshi     Source = "kalshi"
	SourceMetaculus  Source = "metaculus"
	SourcePredictit  Source = "predictit"
	SourceManifold   Source = "manifold"
	SourceAdjacent   Source = "adjacent"
	SourceOther      Source = "other"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourcePolymarket, SourceKalshi, SourceMetaculus,
		SourcePredictit, SourceManifold, SourceAdjacent, SourceOther:
		return true
	}
	return false
}
