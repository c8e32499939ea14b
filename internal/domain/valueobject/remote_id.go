package valueobject

// PostingKind identifies a generated posting family. Each family derives its
// remote id from the originating stock trade id, which makes re-runs
// create-if-absent.
type PostingKind int

const (
	PostingRealized PostingKind = iota
	PostingFX
	PostingMTM
	PostingInterestMTM
)

// Prefix returns the remote-id prefix for the kind and model side.
func (k PostingKind) Prefix(hist bool) string {
	switch k {
	case PostingRealized:
		if hist {
			return "hist_"
		}
		return ""
	case PostingFX:
		if hist {
			return "fx_hist_"
		}
		return "fx_"
	case PostingMTM:
		if hist {
			return "mtm_hist_"
		}
		return "mtm_"
	case PostingInterestMTM:
		return "interestmtm_"
	}
	return ""
}

// RemoteID builds the remote id of a posting generated for tradeID.
func (k PostingKind) RemoteID(tradeID string, hist bool) string {
	return k.Prefix(hist) + tradeID
}

// GeneratedPrefixes lists every prefix that points back at a stock trade.
func GeneratedPrefixes(both bool) []string {
	prefixes := []string{PostingRealized.Prefix(false), PostingMTM.Prefix(false), PostingFX.Prefix(false)}
	if both {
		prefixes = append(prefixes, PostingRealized.Prefix(true), PostingMTM.Prefix(true), PostingFX.Prefix(true))
	}
	return prefixes
}
