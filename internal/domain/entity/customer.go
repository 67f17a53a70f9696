package entity

import "time"

// Customer es el adquiriente de la factura. Country puede venir vacío del
// anfitrión; los adaptadores lo reportan como advertencia, no como bloqueo.
type Customer struct {
	ID        string
	CompanyID string
	Name      string
	TaxID     string
	Country   string
	StateCode string
	Address   string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
