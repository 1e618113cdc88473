package api

import (
	"context"
	"net/http"

	"lifesim/internal/advisory"
	"lifesim/internal/depreciation"

	"github.com/google/uuid"
)

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := s.liabilities.Catalog(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	holdings, err := s.liabilities.Holdings(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holdings": holdings})
}

func (s *Server) handleBuyHolding(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ItemID uuid.UUID `json:"item_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.ItemID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	if err := s.gate(r.Context(), user.UserID, advisory.ActionBuyLifestyleItem, advisory.ActionData{}); err != nil {
		writeDomainError(w, err)
		return
	}

	holding, err := s.liabilities.Purchase(r.Context(), depreciation.PurchaseInput{
		PlayerID:       user.UserID,
		ItemID:         in.ItemID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reaction := s.advisor.CheckRealTime(r.Context(), user.UserID, advisory.ActionBuyLiability, advisory.ActionData{
		Cost:     holding.PurchasePrice,
		ItemName: holding.ItemName,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"holding":         holding,
		"mentor_reaction": reaction,
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	preview, err := s.liabilities.Preview(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Another player's holding is reported as missing.
	if preview.PlayerID != user.UserID {
		writeDomainError(w, depreciation.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleSellHolding(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := s.liabilities.Sell(r.Context(), depreciation.SellInput{
		HoldingID:      id,
		PlayerID:       user.UserID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reaction := s.advisor.CheckRealTime(r.Context(), user.UserID, advisory.ActionSellAssets, advisory.ActionData{
		Amount:         sale.SaleValue,
		ItemName:       sale.ItemName,
		PercentageSold: sale.PortfolioShare,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"sale":            sale,
		"mentor_reaction": reaction,
	})
}

// gate rejects action with advisory.ErrActionBlocked when the player's active
// mission forbids it.
func (s *Server) gate(ctx context.Context, playerID uuid.UUID, action string, data advisory.ActionData) error {
	c, err := s.players.ActiveConstraints(ctx, playerID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	if d := c.CheckAction(action, data); !d.Allowed {
		return &blockedError{reason: d.Reason}
	}
	return nil
}

type blockedError struct{ reason string }

func (e *blockedError) Error() string { return e.reason }

func (e *blockedError) Unwrap() error { return advisory.ErrActionBlocked }
