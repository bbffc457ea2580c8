package service

import (
	"context"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// InventoryService exposes the kit stock primitives outside a registration.
type InventoryService struct {
	kits ports.KitInventory
	tx   ports.Transactor
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(kits ports.KitInventory, tx ports.Transactor) *InventoryService {
	return &InventoryService{kits: kits, tx: tx}
}

// CheckAvailability reports whether quantity units of size are in stock.
// Sizes match case-sensitively; an unknown size is a conflict.
func (s *InventoryService) CheckAvailability(ctx context.Context, kitItemID, size string, quantity int) error {
	if quantity < 1 {
		return model.Invalid("quantity must be at least 1")
	}
	item, err := s.kits.GetKitItem(ctx, kitItemID)
	if err != nil {
		return err
	}
	return availability(item, model.NormalizeSize(size), quantity)
}

// AdjustStock applies delta to one size of a kit item. The store refuses any
// adjustment that would leave the stock below zero.
func (s *InventoryService) AdjustStock(ctx context.Context, kitItemID, size string, delta int) error {
	if delta == 0 {
		return nil
	}
	size = model.NormalizeSize(size)
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.AdjustStock(ctx, kitItemID, size, delta)
	})
}

func availability(item *model.KitItem, size string, quantity int) error {
	stock, ok := item.Stock(size)
	if !ok {
		return model.ErrUnknownSize
	}
	if quantity > stock {
		return model.ErrInsufficientStock
	}
	return nil
}
