package countries_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/edi-gateway/internal/infrastructure/countries"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

const kePIN = "P051234567X"

func TestKenya_SaleRequestCarriesTotalsAndItems(t *testing.T) {
	adapter := countries.Kenya()
	b := testBuildContext(t, "KE", kePIN, nil)

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err)
	assert.False(t, env.NeedsPoll, "eTIMS responde en la misma llamada")

	var req map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &req))
	assert.Equal(t, kePIN, req["tin"])
	assert.Equal(t, "S", req["rcptTyCd"], "la emisión es tipo venta")
	assert.Equal(t, "1180.00", req["totAmt"])
	items := req["itemList"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].(map[string]any)["taxTyCd"])
}

func TestKenya_CancelIsCreditNoteAgainstOriginal(t *testing.T) {
	adapter := countries.Kenya()
	b := testBuildContext(t, "KE", kePIN, nil)
	b.ParentAccessKey = "KE-001-A10000042"
	b.Reason = "Error en los datos del adquiriente de la factura"

	env, err := adapter.BuildCancel(b)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &req))
	assert.Equal(t, "R", req["rcptTyCd"], "la anulación es un reverso")
	assert.Equal(t, b.ParentAccessKey, req["orgInvcNo"])
	assert.Equal(t, b.Reason, req["remark"])
}

func TestKenya_VerifyResponseSuccessKeepsReceiptSignature(t *testing.T) {
	adapter := countries.Kenya()
	body := `{"resultCd":"000","resultMsg":"Successful","data":{"rcptSign":"A1B2C3D4","sdcId":"SDC0010001"}}`

	resp, err := adapter.VerifyResponse(200, []byte(body))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Authoritative)
	assert.Equal(t, "A1B2C3D4", resp.Ticket, "la firma del recibo se conserva")
}

func TestKenya_VerifyResponseInvalidTokenHaltsCountry(t *testing.T) {
	adapter := countries.Kenya()
	body := `{"resultCd":"001","resultMsg":"Invalid or expired token"}`

	_, err := adapter.VerifyResponse(200, []byte(body))
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindAuthentication, pkgedi.KindOf(err))
}

func TestKenya_VerifyResponseOtherCodesAreRejections(t *testing.T) {
	adapter := countries.Kenya()
	body := `{"resultCd":"910","resultMsg":"Request parameter error"}`

	resp, err := adapter.VerifyResponse(200, []byte(body))
	require.NoError(t, err)
	assert.True(t, resp.Authoritative)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "910", resp.Code)
}

func TestKenya_ParseInboundNormalizesSaleList(t *testing.T) {
	adapter := countries.Kenya()
	body := `{"resultCd":"000","resultMsg":"OK","data":{"saleList":[{` +
		`"spplrTin":"P051111111Q","spplrNm":"Proveedor Uno","spplrInvcNo":"KE-IN-77",` +
		`"salesDt":"20260310","totTaxblAmt":5000,"totTaxAmt":800,"totAmt":5800,` +
		`"itemList":[{"itemNm":"Cemento","qtyUnit":"BG","taxTyCd":"B","qty":10,"prc":500,"splyAmt":5000}]}]}}`

	docs, err := adapter.ParseInbound([]byte(body))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "KE-IN-77", doc.AccessKey)
	assert.Equal(t, "P051111111Q", doc.IssuerTaxID)
	assert.Equal(t, "KES", doc.Currency)
	assert.Equal(t, "5800", doc.GrandTotal)
	assert.Equal(t, 2026, doc.IssueDate.Year())
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "Cemento", doc.Lines[0].Description)
	assert.NotEmpty(t, doc.Raw, "el crudo se conserva para auditoría")
}

func TestKenya_ParseInboundEmptyMailboxIsNotAnError(t *testing.T) {
	adapter := countries.Kenya()
	docs, err := adapter.ParseInbound([]byte(`{"resultCd":"001","resultMsg":"There is no search result"}`))
	require.NoError(t, err)
	assert.Empty(t, docs)
}
