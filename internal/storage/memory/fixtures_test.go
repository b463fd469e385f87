package memory

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/order-engine/internal/domain/product"
)

func productFixture(id string, stock int) product.Product {
	return product.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(10), Stock: stock}
}
