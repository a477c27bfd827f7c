package market

import "github.com/shopspring/decimal"

// Compatible reports whether an intent at price own can trade against an
// opposite-side intent at price theirs. A buyer must be willing to pay at
// least what the seller asks; ties trade.
func Compatible(side Side, own, theirs decimal.Decimal) bool {
	if side == Buy {
		return own.GreaterThanOrEqual(theirs)
	}
	return theirs.GreaterThanOrEqual(own)
}

// MatchCandidates filters opposite-side intents down to the price-compatible
// counterparties for in. Pure: no side effects, input order (ascending price
// from the store) is preserved, and every compatible counterparty is
// returned since each spawns its own negotiation. Entries owned by in.Owner
// are skipped even though the store query already excludes them.
func MatchCandidates(in Intent, opposite []Intent) []CandidateMatch {
	var out []CandidateMatch
	for _, o := range opposite {
		if o.Owner == in.Owner {
			continue
		}
		if !Compatible(in.Side, in.Price, o.Price) {
			continue
		}
		out = append(out, CandidateMatch{Counterparty: o.Owner, Price: o.Price})
	}
	return out
}
