package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/service"
)

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	inv := service.NewInventoryService(f.store, f.store)

	tests := []struct {
		name string
		kit  string
		size string
		qty  int
		want error
	}{
		{name: "in stock", kit: kitShirt, size: shirtSize, qty: 5},
		{name: "padded size", kit: kitShirt, size: "  M", qty: 1},
		{name: "too many", kit: kitShirt, size: shirtSize, qty: 6, want: model.ErrInsufficientStock},
		{name: "wrong case", kit: kitShirt, size: "s", qty: 1, want: model.ErrUnknownSize},
		{name: "zero quantity", kit: kitShirt, size: shirtSize, qty: 0, want: model.ErrInvalidInput},
		{name: "unknown item", kit: "kit-ghost", size: shirtSize, qty: 1, want: model.ErrKitItemNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inv.CheckAvailability(context.Background(), tt.kit, tt.size, tt.qty)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	inv := service.NewInventoryService(f.store, f.store)
	ctx := context.Background()

	require.NoError(t, inv.AdjustStock(ctx, kitShirt, shirtSize, -5))
	require.Equal(t, 0, f.stock(t, kitShirt, shirtSize))

	err := inv.AdjustStock(ctx, kitShirt, shirtSize, -1)
	require.ErrorIs(t, err, model.ErrInsufficientStock)
	require.Equal(t, 0, f.stock(t, kitShirt, shirtSize))

	require.NoError(t, inv.AdjustStock(ctx, kitShirt, " M ", 3))
	require.Equal(t, 3, f.stock(t, kitShirt, shirtSize))

	require.ErrorIs(t, inv.AdjustStock(ctx, kitShirt, "XL", 1), model.ErrUnknownSize)
	require.ErrorIs(t, inv.AdjustStock(ctx, "kit-ghost", shirtSize, 1), model.ErrKitItemNotFound)
	require.NoError(t, inv.AdjustStock(ctx, "kit-ghost", shirtSize, 0))
}
