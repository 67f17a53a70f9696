package entity

import "time"

// Ambientes de emisión. "demo" genera y firma sin tocar la red.
const (
	EnvironmentProd = "prod"
	EnvironmentTest = "test"
	EnvironmentDemo = "demo"
)

// CredentialSet agrupa la configuración por (empresa, país): ambiente,
// endpoints y material de autenticación. El certificado es opaco (bytes +
// contraseña); el almacén nunca lo interpreta. Una empresa sin CredentialSet
// completo para un país no es elegible para emitir en ese país.
type CredentialSet struct {
	ID          string
	CompanyID   string
	Country     string
	Environment string // prod | test | demo

	// Endpoints por operación ("submit", "query", "inbound"). Si falta una
	// entrada, el adaptador del país aporta su URL por defecto para el ambiente.
	Endpoints map[string]string

	// Identificación fiscal del emisor ante la autoridad de ese país.
	TaxpayerID string

	// Material de autenticación; cada país usa el estilo que le corresponde.
	Username string
	Password string
	Token    string // bearer / OAuth
	LEI      string

	// Certificado de firma y/o mTLS (.p12), opaco para el almacén.
	CertData     []byte
	CertPassword string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Endpoint devuelve la URL configurada para la operación o "" si no existe.
func (c *CredentialSet) Endpoint(op string) string {
	if c == nil || c.Endpoints == nil {
		return ""
	}
	return c.Endpoints[op]
}

// MissingFields lista los campos obligatorios ausentes según los requisitos
// declarados por el adaptador del país. El despachador decide si la ausencia
// bloquea o solo advierte.
func (c *CredentialSet) MissingFields(needCert, needUserPass, needToken bool) []string {
	var missing []string
	if c.TaxpayerID == "" {
		missing = append(missing, "taxpayer_id")
	}
	if needCert && len(c.CertData) == 0 {
		missing = append(missing, "certificate")
	}
	if needUserPass && (c.Username == "" || c.Password == "") {
		missing = append(missing, "username/password")
	}
	if needToken && c.Token == "" {
		missing = append(missing, "token")
	}
	return missing
}
