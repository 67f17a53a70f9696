package entity

import "time"

// Company representa la empresa emisora (tenant del anfitrión). El país decide
// qué adaptador, esquema y cliente se usan para sus facturas.
type Company struct {
	ID        string
	Name      string
	TaxID     string // NIT, CNPJ, RFC, RUC, PIN... según el país
	Country   string // código ISO de dos letras (BR, MX, UY, PE, KE, IN)
	StateCode string // UF/estado del emisor; BR lo usa en la clave de acceso
	Address   string
	Email     string
	TimeZone  string // zona horaria del emisor para fechas del esquema
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location devuelve la zona horaria del emisor, con UTC como último recurso.
func (c *Company) Location() *time.Location {
	if c.TimeZone != "" {
		if loc, err := time.LoadLocation(c.TimeZone); err == nil {
			return loc
		}
	}
	return time.UTC
}
