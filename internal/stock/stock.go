package stock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/locks"
	"github.com/angelmondragon/tradepost/internal/market"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/metrics"
)

type tokenState int

const (
	tokenLive tokenState = iota
	tokenReleased
	tokenCommitted
)

type tokenEntry struct {
	token market.Token
	state tokenState
}

// Stock owns the available and total quantity of every tracked item. All
// quantity mutation goes through Reserve, Release and Commit (plus Uncommit
// for rollback).
//
// Lock order is item locks first, then mu. mu only guards the two maps;
// item quantities and token states are guarded by the lock of their item.
type Stock struct {
	locks   *locks.Keyed
	metrics *metrics.EngineMetrics

	mu     sync.RWMutex
	items  map[uuid.UUID]*market.Item
	tokens map[uuid.UUID]*tokenEntry
}

type Options struct {
	Locks   *locks.Keyed
	Metrics *metrics.EngineMetrics
}

func New(opts Options) *Stock {
	keyed := opts.Locks
	if keyed == nil {
		keyed = locks.New(locks.Options{})
	}
	return &Stock{
		locks:   keyed,
		metrics: opts.Metrics,
		items:   make(map[uuid.UUID]*market.Item),
		tokens:  make(map[uuid.UUID]*tokenEntry),
	}
}

// Track registers an item. Tracking an id that is already known keeps the
// live quantities and returns them.
func (s *Stock) Track(ctx context.Context, item market.Item) (market.Item, error) {
	if err := item.Validate(); err != nil {
		return market.Item{}, err
	}
	unlock, err := s.locks.Acquire(ctx, item.ID)
	if err != nil {
		return market.Item{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[item.ID]; ok {
		return *existing, nil
	}
	copied := item
	s.items[item.ID] = &copied
	return copied, nil
}

// Replace overwrites the quantities of an item, typically with the stored
// row read at the start of a call. Tokens are left alone.
func (s *Stock) Replace(ctx context.Context, item market.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	unlock, err := s.locks.TryAcquire(ctx, item.ID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := item
	s.items[item.ID] = &copied
	return nil
}

func (s *Stock) Snapshot(ctx context.Context, itemID uuid.UUID) (market.Item, bool) {
	unlock, err := s.locks.Acquire(ctx, itemID)
	if err != nil {
		return market.Item{}, false
	}
	defer unlock()

	item, ok := s.lookup(itemID)
	if !ok {
		return market.Item{}, false
	}
	return *item, true
}

// Snapshots returns a consistent view of the requested items.
func (s *Stock) Snapshots(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]market.Item, error) {
	unlock, err := s.locks.Acquire(ctx, itemIDs...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make(map[uuid.UUID]market.Item, len(itemIDs))
	for _, id := range itemIDs {
		if item, ok := s.lookup(id); ok {
			out[id] = *item
		}
	}
	return out, nil
}

// IsLive reports whether the token still holds reserved units.
func (s *Stock) IsLive(ctx context.Context, token market.Token) bool {
	entry, ok := s.entry(token.ID)
	if !ok {
		return false
	}
	unlock, err := s.locks.Acquire(ctx, entry.token.ItemID)
	if err != nil {
		return false
	}
	defer unlock()
	return entry.state == tokenLive
}

// Adopt registers reservations that were persisted as live, without moving
// quantities. A token already known is reset to live, since the stored
// offer is what counts when another process moved it.
func (s *Stock) Adopt(tokens ...market.Token) error {
	return s.adopt(tokenLive, tokens)
}

// AdoptCommitted registers reservations of accepted offers so a later
// cancel can hand their units back.
func (s *Stock) AdoptCommitted(tokens ...market.Token) error {
	return s.adopt(tokenCommitted, tokens)
}

// Forget drops tokens of settled offers. Quantities are not touched.
func (s *Stock) Forget(tokens ...market.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range tokens {
		delete(s.tokens, tok.ID)
	}
}

func (s *Stock) adopt(state tokenState, tokens []market.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range tokens {
		if _, ok := s.items[tok.ItemID]; !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not tracked").
				WithDetails(map[string]any{"item_id": tok.ItemID})
		}
	}
	// fresh entries: states of existing ones are guarded by item locks
	for _, tok := range tokens {
		s.tokens[tok.ID] = &tokenEntry{token: tok, state: state}
	}
	return nil
}

// Reserve atomically checks and decrements available quantity.
func (s *Stock) Reserve(ctx context.Context, itemID uuid.UUID, qty int) (market.Token, error) {
	tokens, err := s.ReserveAll(ctx, []market.LineItem{{ItemID: itemID, Quantity: qty}})
	if err != nil {
		return market.Token{}, err
	}
	return tokens[0], nil
}

// ReserveAll reserves every pair or none of them. Items are locked in
// canonical id order for the duration of the check and decrement.
func (s *Stock) ReserveAll(ctx context.Context, lines []market.LineItem) ([]market.Token, error) {
	merged, err := market.MergeLineItems(lines)
	if err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(merged))
	for _, li := range merged {
		ids = append(ids, li.ItemID)
	}
	unlock, err := s.locks.TryAcquire(ctx, ids...)
	if err != nil {
		s.metrics.ObserveReservation(metrics.OutcomeReservationConflict)
		return nil, err
	}
	defer unlock()

	cells := make([]*market.Item, len(merged))
	for i, li := range merged {
		item, ok := s.lookup(li.ItemID)
		if !ok {
			s.metrics.ObserveReservation(metrics.OutcomeError)
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not tracked").
				WithDetails(map[string]any{"item_id": li.ItemID})
		}
		if li.Quantity > item.AvailableQuantity {
			s.metrics.ObserveReservation(metrics.OutcomeInsufficientStock)
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough units available").
				WithDetails(map[string]any{
					"item_id":   li.ItemID,
					"requested": li.Quantity,
					"available": item.AvailableQuantity,
				})
		}
		cells[i] = item
	}

	tokens := make([]market.Token, 0, len(merged))
	entries := make([]*tokenEntry, 0, len(merged))
	for i, li := range merged {
		cells[i].AvailableQuantity -= li.Quantity
		cells[i].Version++
		tok := market.Token{ID: uuid.New(), ItemID: li.ItemID, Quantity: li.Quantity}
		tokens = append(tokens, tok)
		entries = append(entries, &tokenEntry{token: tok, state: tokenLive})
	}

	s.mu.Lock()
	for _, e := range entries {
		s.tokens[e.token.ID] = e
	}
	s.mu.Unlock()

	s.metrics.ObserveReservation(metrics.OutcomeOK)
	return tokens, nil
}

// Release returns reserved units to available, capped at total. Tokens that
// are unknown, already released or committed are ignored.
func (s *Stock) Release(ctx context.Context, tokens ...market.Token) error {
	entries := s.entries(tokens)
	if len(entries) == 0 {
		return nil
	}
	unlock, err := s.locks.TryAcquire(ctx, entryItemIDs(entries)...)
	if err != nil {
		return err
	}
	defer unlock()

	for _, entry := range entries {
		if entry.state != tokenLive {
			continue
		}
		entry.state = tokenReleased
		item, ok := s.lookup(entry.token.ItemID)
		if !ok {
			continue
		}
		item.AvailableQuantity += entry.token.Quantity
		if item.AvailableQuantity > item.TotalQuantity {
			item.AvailableQuantity = item.TotalQuantity
		}
		item.Version++
	}
	return nil
}

// Commit turns live reservations into a permanent reduction of total
// quantity. It is atomic over the set: if any token is not live nothing is
// committed.
func (s *Stock) Commit(ctx context.Context, tokens ...market.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	entries := s.entries(tokens)
	if len(entries) != len(dedupeTokens(tokens)) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer live")
	}
	unlock, err := s.locks.TryAcquire(ctx, entryItemIDs(entries)...)
	if err != nil {
		return err
	}
	defer unlock()

	for _, entry := range entries {
		if entry.state != tokenLive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer live").
				WithDetails(map[string]any{"token_id": entry.token.ID, "item_id": entry.token.ItemID})
		}
		if _, ok := s.lookup(entry.token.ItemID); !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not tracked").
				WithDetails(map[string]any{"item_id": entry.token.ItemID})
		}
	}
	for _, entry := range entries {
		item, _ := s.lookup(entry.token.ItemID)
		item.TotalQuantity -= entry.token.Quantity
		item.Version++
		entry.state = tokenCommitted
	}
	return nil
}

// Uncommit reverses Commit, restoring total quantity and making the tokens
// live again. Tokens that are not committed are ignored.
func (s *Stock) Uncommit(ctx context.Context, tokens ...market.Token) error {
	entries := s.entries(tokens)
	if len(entries) == 0 {
		return nil
	}
	unlock, err := s.locks.TryAcquire(ctx, entryItemIDs(entries)...)
	if err != nil {
		return err
	}
	defer unlock()

	for _, entry := range entries {
		if entry.state != tokenCommitted {
			continue
		}
		item, ok := s.lookup(entry.token.ItemID)
		if !ok {
			continue
		}
		item.TotalQuantity += entry.token.Quantity
		item.Version++
		entry.state = tokenLive
	}
	return nil
}

// Restore re-reserves released tokens under their original ids. It is used
// to undo a Release whose follow-up write failed, and fails with
// INSUFFICIENT_STOCK if the units were taken in the meantime.
func (s *Stock) Restore(ctx context.Context, tokens ...market.Token) error {
	entries := s.entries(tokens)
	if len(entries) == 0 {
		return nil
	}
	unlock, err := s.locks.TryAcquire(ctx, entryItemIDs(entries)...)
	if err != nil {
		return err
	}
	defer unlock()

	need := make(map[uuid.UUID]int, len(entries))
	for _, entry := range entries {
		if entry.state == tokenReleased {
			need[entry.token.ItemID] += entry.token.Quantity
		}
	}
	for itemID, qty := range need {
		item, ok := s.lookup(itemID)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not tracked").
				WithDetails(map[string]any{"item_id": itemID})
		}
		if qty > item.AvailableQuantity {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "released units are no longer available").
				WithDetails(map[string]any{
					"item_id":   itemID,
					"requested": qty,
					"available": item.AvailableQuantity,
				})
		}
	}
	for _, entry := range entries {
		if entry.state != tokenReleased {
			continue
		}
		item, _ := s.lookup(entry.token.ItemID)
		item.AvailableQuantity -= entry.token.Quantity
		item.Version++
		entry.state = tokenLive
	}
	return nil
}

func (s *Stock) lookup(itemID uuid.UUID) (*market.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	return item, ok
}

func (s *Stock) entry(tokenID uuid.UUID) (*tokenEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tokens[tokenID]
	return e, ok
}

// entries resolves known tokens once each, ignoring unknown ids.
func (s *Stock) entries(tokens []market.Token) []*tokenEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tokenEntry, 0, len(tokens))
	for _, tok := range dedupeTokens(tokens) {
		if e, ok := s.tokens[tok.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

func dedupeTokens(tokens []market.Token) []market.Token {
	seen := make(map[uuid.UUID]struct{}, len(tokens))
	out := make([]market.Token, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok.ID]; ok {
			continue
		}
		seen[tok.ID] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func entryItemIDs(entries []*tokenEntry) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.token.ItemID)
	}
	return ids
}
