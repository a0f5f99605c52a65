package listings

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
)

// StockMove is a change to a stored item's quantities. Available and Total
// are deltas.
type StockMove struct {
	ItemID    uuid.UUID
	Available int
	Total     int
}

func (m StockMove) IsZero() bool { return m.Available == 0 && m.Total == 0 }

// holding is what an offer in the given status withholds per reserved unit.
// Pending offers hold available units; accepted and completed offers have
// also taken them out of the total.
func holding(status enums.OfferStatus) (available, total int) {
	switch status {
	case enums.OfferStatusPending:
		return 1, 0
	case enums.OfferStatusAccepted, enums.OfferStatusCompleted:
		return 1, 1
	default:
		return 0, 0
	}
}

// offerMoves is the stock change between two states of one offer, so the
// store can apply it on top of whatever other processes wrote. A zero prev
// stands for an offer that did not exist before.
func offerMoves(prev, next market.Offer) []StockMove {
	byItem := make(map[uuid.UUID]*StockMove)
	var order []uuid.UUID
	apply := func(offer market.Offer, sign int) {
		if offer.Status == "" {
			return
		}
		avail, total := holding(offer.Status)
		for _, tok := range offer.Reservations {
			m, ok := byItem[tok.ItemID]
			if !ok {
				m = &StockMove{ItemID: tok.ItemID}
				byItem[tok.ItemID] = m
				order = append(order, tok.ItemID)
			}
			m.Available -= sign * avail * tok.Quantity
			m.Total -= sign * total * tok.Quantity
		}
	}
	apply(next, 1)
	apply(prev, -1)

	var out []StockMove
	for _, id := range order {
		if m := byItem[id]; !m.IsZero() {
			out = append(out, *m)
		}
	}
	return out
}

// NetStock folds moves into one per item, ordered by item id so concurrent
// writers touch rows in the same order. Moves that cancel out are dropped.
func NetStock(moves []StockMove) []StockMove {
	byItem := make(map[uuid.UUID]StockMove, len(moves))
	for _, m := range moves {
		net := byItem[m.ItemID]
		net.ItemID = m.ItemID
		net.Available += m.Available
		net.Total += m.Total
		byItem[m.ItemID] = net
	}
	out := make([]StockMove, 0, len(byItem))
	for _, m := range byItem {
		if !m.IsZero() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ItemID[:], out[j].ItemID[:]) < 0
	})
	return out
}
