package countries_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// testPEMCertificate genera un certificado RSA autofirmado en formato PEM
// combinado (certificado + llave), aceptado por el cargador de credenciales.
func testPEMCertificate(t *testing.T) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generando la llave RSA de prueba")

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7341),
		Subject:      pkix.Name{CommonName: "Emisor de Prueba", Organization: []string{"EDI Gateway"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err, "emitiendo el certificado de prueba")

	var buf bytes.Buffer
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	return buf.Bytes()
}

// testBuildContext arma un contexto de construcción completo para el país.
func testBuildContext(t *testing.T, country, taxpayerID string, certData []byte) *appedi.BuildContext {
	t.Helper()

	issue := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	company := &entity.Company{
		ID:        "co-1",
		Name:      "Comercial Andina S.A.",
		TaxID:     taxpayerID,
		Country:   country,
		StateCode: "35",
		TimeZone:  "UTC",
	}
	customer := &entity.Customer{
		ID:      "cu-1",
		Name:    "Distribuidora del Sur Ltda",
		TaxID:   "20600055519",
		Country: country,
	}
	invoice := &entity.Invoice{
		ID:         "12345678",
		CompanyID:  company.ID,
		CustomerID: customer.ID,
		Country:    country,
		Series:     "A1",
		Number:     "1042",
		IssueDate:  issue,
		Currency:   "USD",
		NetTotal:   decimal.RequireFromString("1000.00"),
		TaxTotal:   decimal.RequireFromString("180.00"),
		GrandTotal: decimal.RequireFromString("1180.00"),
		Posted:     true,
	}
	lines := []*entity.InvoiceLine{{
		ID:          "ln-1",
		InvoiceID:   invoice.ID,
		Description: "Servicio de consultoría",
		ProductCode: "998314",
		UnitCode:    "ZZ",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.RequireFromString("1000.00"),
		TaxCode:     "B",
		TaxRate:     decimal.RequireFromString("0.18"),
		Subtotal:    decimal.RequireFromString("1000.00"),
	}}
	creds := &entity.CredentialSet{
		ID:           "cr-1",
		CompanyID:    company.ID,
		Country:      country,
		Environment:  entity.EnvironmentTest,
		TaxpayerID:   taxpayerID,
		Username:     "MODDATOS",
		Password:     "moddatos",
		Token:        "tok-prueba",
		CertData:     certData,
		CertPassword: "",
	}

	return &appedi.BuildContext{
		Invoice:     invoice,
		Lines:       lines,
		Company:     company,
		Customer:    customer,
		Credentials: creds,
		Now:         issue,
	}
}
