package domain

import "github.com/shopspring/decimal"

// Product — товар каталога: цена, остаток и продавец.
type Product struct {
	ID            string
	SellerID      string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

// CartLine задаёт строку корзины пользователя.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Address — адрес доставки, принадлежащий пользователю.
type Address struct {
	ID         string
	UserID     string
	Line1      string
	City       string
	PostalCode string
	Country    string
}
