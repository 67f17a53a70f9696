package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice es la superficie estrecha de la factura del ERP anfitrión que este
// servicio lee y escribe. La contabilización, las vistas y el cobro viven en el
// anfitrión; aquí solo importan los montos, el país emisor y el espejo del
// estado EDI. Invariante: una factura contabilizada tiene a lo sumo un
// documento en estado no terminal.
type Invoice struct {
	ID         string
	CompanyID  string
	CustomerID string
	Country    string // país de la empresa emisora (denormalizado)
	Series     string
	Number     string
	IssueDate  time.Time
	Currency   string

	NetTotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal

	Posted    bool
	Cancelled bool

	// Espejo del último documento EDI (estado consolidado para el anfitrión).
	EDIStatus    string
	EDIAccessKey string
	EDIError     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullNumber devuelve serie+número sin espacios, como lo exigen las claves de acceso.
func (i *Invoice) FullNumber() string {
	return i.Series + i.Number
}

// InvoiceLine es una línea de la factura con su identificación tributaria.
type InvoiceLine struct {
	ID          string
	InvoiceID   string
	Description string
	ProductCode string
	UnitCode    string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxCode     string // código de impuesto del país (tabla paramétrica)
	TaxRate     decimal.Decimal
	Subtotal    decimal.Decimal
}

// TaxAmount calcula el impuesto de la línea (base * tasa, redondeado a 2).
func (l *InvoiceLine) TaxAmount() decimal.Decimal {
	return l.Subtotal.Mul(l.TaxRate).Round(2)
}
