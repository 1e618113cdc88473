package depreciation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store whose transactions snapshot and restore
// state on error, including per-savepoint rollback.
type memStore struct {
	holdings   map[uuid.UUID]Holding
	balances   map[uuid.UUID]decimal.Decimal
	catalog    map[uuid.UUID]CatalogItem
	ledger     []LedgerEntry
	deductions map[uuid.UUID]int
	keys       map[string]bool

	failSave map[uuid.UUID]bool
	saves    int
}

func newMemStore() *memStore {
	return &memStore{
		holdings:   map[uuid.UUID]Holding{},
		balances:   map[uuid.UUID]decimal.Decimal{},
		catalog:    map[uuid.UUID]CatalogItem{},
		deductions: map[uuid.UUID]int{},
		keys:       map[string]bool{},
		failSave:   map[uuid.UUID]bool{},
	}
}

type memState struct {
	holdings   map[uuid.UUID]Holding
	balances   map[uuid.UUID]decimal.Decimal
	ledger     []LedgerEntry
	deductions map[uuid.UUID]int
	keys       map[string]bool
}

func (s *memStore) snapshot() memState {
	st := memState{
		holdings:   make(map[uuid.UUID]Holding, len(s.holdings)),
		balances:   make(map[uuid.UUID]decimal.Decimal, len(s.balances)),
		ledger:     append([]LedgerEntry(nil), s.ledger...),
		deductions: make(map[uuid.UUID]int, len(s.deductions)),
		keys:       make(map[string]bool, len(s.keys)),
	}
	for k, v := range s.holdings {
		st.holdings[k] = v
	}
	for k, v := range s.balances {
		st.balances[k] = v
	}
	for k, v := range s.deductions {
		st.deductions[k] = v
	}
	for k, v := range s.keys {
		st.keys[k] = v
	}
	return st
}

func (s *memStore) restore(st memState) {
	s.holdings, s.balances, s.ledger, s.deductions, s.keys = st.holdings, st.balances, st.ledger, st.deductions, st.keys
}

func (s *memStore) add(h Holding) Holding {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	s.holdings[h.ID] = h
	return h
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	st := s.snapshot()
	if err := fn(memTx{s}); err != nil {
		s.restore(st)
		return err
	}
	return nil
}

func (s *memStore) Holding(_ context.Context, id uuid.UUID) (Holding, error) {
	h, ok := s.holdings[id]
	if !ok {
		return Holding{}, ErrNotFound
	}
	return h, nil
}

func (s *memStore) Holdings(_ context.Context, playerID uuid.UUID) ([]Holding, error) {
	var out []Holding
	for _, h := range s.sorted() {
		if h.PlayerID == playerID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) Catalog(context.Context) ([]CatalogItem, error) {
	var out []CatalogItem
	for _, it := range s.catalog {
		out = append(out, it)
	}
	return out, nil
}

func (s *memStore) sorted() []Holding {
	out := make([]Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.Before(out[j].PurchaseDate) })
	return out
}

type memTx struct{ s *memStore }

func (t memTx) Savepoint(_ context.Context, fn func(tx Tx) error) error {
	st := t.s.snapshot()
	if err := fn(t); err != nil {
		t.s.restore(st)
		return err
	}
	return nil
}

func (t memTx) ClaimIdempotency(_ context.Context, playerID uuid.UUID, key, action string) error {
	k := playerID.String() + "/" + key
	if t.s.keys[k] {
		return ErrDuplicateIdempotency
	}
	t.s.keys[k] = true
	return nil
}

func (t memTx) LockActiveHoldings(_ context.Context, playerID *uuid.UUID) ([]Holding, error) {
	var out []Holding
	for _, h := range t.s.sorted() {
		if !h.IsActive {
			continue
		}
		if playerID != nil && h.PlayerID != *playerID {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (t memTx) HoldingsMissingValue(context.Context) ([]Holding, error) {
	var out []Holding
	for _, h := range t.s.sorted() {
		if !h.CurrentValue.Valid {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t memTx) SaveDepreciation(_ context.Context, id uuid.UUID, value decimal.Decimal, monthsOwned int, on time.Time) error {
	t.s.saves++
	h, ok := t.s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	// the write lands before the failure so savepoint rollback is observable
	h.CurrentValue = decimal.NewNullDecimal(value)
	h.MonthsOwned = monthsOwned
	d := time.Date(on.Year(), on.Month(), on.Day(), 0, 0, 0, 0, time.UTC)
	h.LastDepreciationDate = &d
	t.s.holdings[id] = h
	if t.s.failSave[id] {
		return errors.New("disk on fire")
	}
	return nil
}

func (t memTx) InitValue(_ context.Context, id uuid.UUID, value decimal.Decimal, monthsOwned int) error {
	h, ok := t.s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	h.CurrentValue = decimal.NewNullDecimal(value)
	h.MonthsOwned = monthsOwned
	t.s.holdings[id] = h
	return nil
}

func (t memTx) InsertHolding(_ context.Context, h Holding) (Holding, error) {
	return t.s.add(h), nil
}

func (t memTx) DeactivateHolding(_ context.Context, id uuid.UUID) error {
	h, ok := t.s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	h.IsActive = false
	t.s.holdings[id] = h
	return nil
}

func (t memTx) CatalogItem(_ context.Context, id uuid.UUID) (CatalogItem, error) {
	it, ok := t.s.catalog[id]
	if !ok {
		return CatalogItem{}, ErrItemNotFound
	}
	return it, nil
}

func (t memTx) LockBalance(_ context.Context, playerID uuid.UUID) (decimal.Decimal, error) {
	b, ok := t.s.balances[playerID]
	if !ok {
		t.s.balances[playerID] = decimal.Zero
		return decimal.Zero, nil
	}
	return b, nil
}

func (t memTx) SetBalance(_ context.Context, playerID uuid.UUID, balance decimal.Decimal) error {
	t.s.balances[playerID] = balance
	return nil
}

func (t memTx) InsertLedgerEntry(_ context.Context, e LedgerEntry) (uuid.UUID, error) {
	t.s.ledger = append(t.s.ledger, e)
	return uuid.New(), nil
}

func (t memTx) ScheduleRecurringCost(_ context.Context, _, holdingID uuid.UUID, amount decimal.Decimal, _ time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("bad amount %s", amount)
	}
	t.s.deductions[holdingID]++
	return nil
}

func (t memTx) CancelRecurringCosts(_ context.Context, holdingID uuid.UUID) (int64, error) {
	n := t.s.deductions[holdingID]
	delete(t.s.deductions, holdingID)
	return int64(n), nil
}
