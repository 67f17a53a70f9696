package countries_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/edi-gateway/internal/infrastructure/countries"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

const inGSTIN = "29AAACB1234C1Z5"

func TestIndia_IRNIsDeterministicSHA256(t *testing.T) {
	adapter := countries.India()

	first, err := adapter.BuildIssue(testBuildContext(t, "IN", inGSTIN, nil))
	require.NoError(t, err)
	second, err := adapter.BuildIssue(testBuildContext(t, "IN", inGSTIN, nil))
	require.NoError(t, err)

	assert.Equal(t, first.AccessKey, second.AccessKey)
	assert.Len(t, first.AccessKey, 64, "el IRN es SHA-256 en hexadecimal")
}

func TestIndia_IRNUsesIndianFiscalYear(t *testing.T) {
	adapter := countries.India()

	march := testBuildContext(t, "IN", inGSTIN, nil)
	march.Invoice.IssueDate = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	april := testBuildContext(t, "IN", inGSTIN, nil)
	april.Invoice.IssueDate = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	envMarch, err := adapter.BuildIssue(march)
	require.NoError(t, err)
	envApril, err := adapter.BuildIssue(april)
	require.NoError(t, err)

	assert.NotEqual(t, envMarch.AccessKey, envApril.AccessKey,
		"marzo y abril caen en años fiscales distintos (abril-marzo)")
}

func TestIndia_InvalidGSTINBlocksBeforeNetwork(t *testing.T) {
	adapter := countries.India()
	b := testBuildContext(t, "IN", "GSTIN-CORTO", nil)

	_, err := adapter.BuildIssue(b)
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindValidation, pkgedi.KindOf(err))
}

func TestIndia_VerifyResponseRegisteredIRN(t *testing.T) {
	adapter := countries.India()
	body := `{"Status":1,"Data":{"Irn":"abc123","AckNo":112010036563,"Status":"ACT","SignedQRCode":"eyJhbGciOi..."}}`

	resp, err := adapter.VerifyResponse(200, []byte(body))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Authoritative)
	assert.Equal(t, "abc123", resp.AccessKey)
	require.Len(t, resp.Attachments, 1, "el SignedQRCode se conserva como adjunto")
	assert.Equal(t, "signed-qr.txt", resp.Attachments[0].Name)
}

func TestIndia_VerifyResponseTokenErrorHaltsCountry(t *testing.T) {
	adapter := countries.India()
	body := `{"Status":0,"ErrorDetails":[{"ErrorCode":"1005","ErrorMessage":"Invalid Token"}]}`

	_, err := adapter.VerifyResponse(200, []byte(body))
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindAuthentication, pkgedi.KindOf(err))
}

func TestIndia_VerifyResponseSchemaErrorIsRejection(t *testing.T) {
	adapter := countries.India()
	body := `{"Status":0,"ErrorDetails":[{"ErrorCode":"2150","ErrorMessage":"Duplicate IRN"}]}`

	resp, err := adapter.VerifyResponse(200, []byte(body))
	require.NoError(t, err)
	assert.True(t, resp.Authoritative)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "2150", resp.Code)
}

func TestIndia_CancelRequestReferencesIRN(t *testing.T) {
	adapter := countries.India()
	b := testBuildContext(t, "IN", inGSTIN, nil)
	b.ParentAccessKey = "abc123"
	b.Reason = "Error en los datos del adquiriente de la factura"

	env, err := adapter.BuildCancel(b)
	require.NoError(t, err)
	assert.Equal(t, "CNL-abc123", env.AccessKey)

	var req map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &req))
	assert.Equal(t, "abc123", req["Irn"])
	assert.Equal(t, b.Reason, req["CnlRem"])
}

func TestIndia_ParseInboundNormalizesIRNList(t *testing.T) {
	adapter := countries.India()
	body := `{"Status":1,"Data":[{"Irn":"def456","SellerGstin":"27AAACB1234C1Z9",` +
		`"SellerLglNm":"Proveedor India","DocDt":"14/03/2026","AssVal":1000,"TotTax":180,"TotInvVal":1180}]}`

	docs, err := adapter.ParseInbound([]byte(body))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "def456", docs[0].AccessKey)
	assert.Equal(t, "INR", docs[0].Currency)
	assert.Equal(t, "1180", docs[0].GrandTotal)
	assert.Equal(t, time.March, docs[0].IssueDate.Month())
}
