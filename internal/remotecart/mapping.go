package remotecart

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	"github.com/angelmondragon/vaccine-orders/pkg/db/models"
)

func toItem(line cart.Line) (models.CartItem, error) {
	product, err := json.Marshal(line.Product)
	if err != nil {
		return models.CartItem{}, fmt.Errorf("encoding product: %w", err)
	}
	pack, err := json.Marshal(line.DosePack)
	if err != nil {
		return models.CartItem{}, fmt.Errorf("encoding dose pack: %w", err)
	}
	return models.CartItem{
		ProductID:             line.Product.ID.String(),
		DosePackID:            line.DosePack.ID.String(),
		Quantity:              line.Quantity,
		RequestedDeliveryDate: line.RequestedDeliveryDate,
		SpecialInstructions:   line.SpecialInstructions,
		Product:               string(product),
		DosePack:              string(pack),
	}, nil
}

func toLine(item models.CartItem) (cart.Line, error) {
	line := cart.Line{
		Product:               cart.Product{ID: cart.ID(item.ProductID)},
		DosePack:              cart.DosePack{ID: cart.ID(item.DosePackID)},
		Quantity:              item.Quantity,
		RequestedDeliveryDate: item.RequestedDeliveryDate,
		SpecialInstructions:   item.SpecialInstructions,
	}
	if item.Product != "" {
		if err := json.Unmarshal([]byte(item.Product), &line.Product); err != nil {
			return cart.Line{}, fmt.Errorf("decoding product of item %s: %w", item.ID, err)
		}
	}
	if item.DosePack != "" {
		if err := json.Unmarshal([]byte(item.DosePack), &line.DosePack); err != nil {
			return cart.Line{}, fmt.Errorf("decoding dose pack of item %s: %w", item.ID, err)
		}
	}
	return line, nil
}

func toLines(items []models.CartItem) ([]cart.Line, error) {
	lines := make([]cart.Line, 0, len(items))
	for _, item := range items {
		line, err := toLine(item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
