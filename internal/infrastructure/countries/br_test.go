package countries_test

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/edi-gateway/internal/infrastructure/countries"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

const brCNPJ = "12.345.678/0001-95"

func TestBrazil_AccessKeyHas44DigitsAndValidCheckDigit(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err, "la emisión debe construirse sin errores")

	require.Len(t, env.AccessKey, 44, "la clave de acceso NF-e tiene 44 dígitos")
	assert.True(t, env.NeedsPoll, "SEFAZ exige la segunda pata de consulta")

	// Recalcula el DV módulo 11 con pesos 2..9 de derecha a izquierda.
	base := env.AccessKey[:43]
	weight, sum := 2, 0
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	want := byte('0')
	if rem := sum % 11; rem >= 2 {
		want = byte('0' + 11 - rem)
	}
	assert.Equal(t, want, env.AccessKey[43], "dígito verificador incorrecto")

	// La clave embebe CNPJ, modelo 55 y serie/número rellenados.
	assert.Equal(t, "12345678000195", env.AccessKey[6:20], "CNPJ dentro de la clave")
	assert.Equal(t, "55", env.AccessKey[20:22], "modelo 55")
	assert.Equal(t, "001", env.AccessKey[22:25], "serie rellenada a 3 dígitos")
	assert.Equal(t, "000001042", env.AccessKey[25:34], "número rellenado a 9 dígitos")
}

func TestBrazil_AccessKeyIsDeterministic(t *testing.T) {
	adapter := countries.Brazil()
	cert := testPEMCertificate(t)

	first, err := adapter.BuildIssue(testBuildContext(t, "BR", brCNPJ, cert))
	require.NoError(t, err)
	second, err := adapter.BuildIssue(testBuildContext(t, "BR", brCNPJ, cert))
	require.NoError(t, err)

	assert.Equal(t, first.AccessKey, second.AccessKey,
		"misma factura debe producir la misma clave de acceso")
}

func TestBrazil_ExtractAccessKeyRoundTrip(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err)

	key, err := adapter.ExtractAccessKey(env.Payload)
	require.NoError(t, err, "la clave debe recuperarse del XML firmado")
	assert.Equal(t, env.AccessKey, key)
}

func TestBrazil_PayloadRecoversInvoiceTotals(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(env.Payload))
	get := func(path string) string {
		el := doc.FindElement(path)
		require.NotNil(t, el, "falta %s en la NF-e", path)
		return el.Text()
	}

	// Los montos de la factura se leen de vuelta del XML construido.
	assert.Equal(t, "1000.00", get("//ICMSTot/vBC"), "base de cálculo")
	assert.Equal(t, "180.00", get("//ICMSTot/vICMS"), "ICMS total")
	assert.Equal(t, "1180.00", get("//ICMSTot/vNF"), "valor de la nota")
	assert.Equal(t, "1000.00", get("//det/prod/vProd"), "valor de la línea")
}

func TestBrazil_SignedPayloadCarriesSignature(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err)

	payload := string(env.Payload)
	assert.Contains(t, payload, "<ds:Signature", "la NF-e sale firmada")
	assert.Contains(t, payload, "SignatureValue", "falta el valor de firma")
}

func TestBrazil_InvalidCNPJBlocksBeforeNetwork(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", "123", testPEMCertificate(t))

	_, err := adapter.BuildIssue(b)
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindValidation, pkgedi.KindOf(err),
		"un CNPJ malformado es error de validación local")
}

func TestBrazil_VerifyResponseByCStat(t *testing.T) {
	cases := []struct {
		name          string
		body          string
		accepted      bool
		authoritative bool
	}{
		{"autorizada", `<retConsSitNFe><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo><chNFe>123</chNFe></retConsSitNFe>`, true, true},
		{"cancelada", `<retEvento><cStat>101</cStat><xMotivo>Cancelamento homologado</xMotivo></retEvento>`, true, true},
		{"evento vinculado", `<retEvento><cStat>135</cStat><xMotivo>Evento registrado</xMotivo></retEvento>`, true, true},
		{"lote recibido", `<retEnviNFe><cStat>103</cStat><xMotivo>Lote recebido</xMotivo><nRec>351000000000001</nRec></retEnviNFe>`, false, false},
		{"rechazada", `<retConsSitNFe><cStat>204</cStat><xMotivo>Duplicidade de NF-e</xMotivo></retConsSitNFe>`, false, true},
	}

	adapter := countries.Brazil()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := adapter.VerifyResponse(200, []byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.accepted, resp.Accepted)
			assert.Equal(t, tc.authoritative, resp.Authoritative)
		})
	}
}

func TestBrazil_VerifyResponseLoteKeepsTicket(t *testing.T) {
	adapter := countries.Brazil()
	resp, err := adapter.VerifyResponse(200,
		[]byte(`<retEnviNFe><cStat>103</cStat><xMotivo>Lote recebido</xMotivo><nRec>351000000000001</nRec></retEnviNFe>`))
	require.NoError(t, err)
	assert.Equal(t, "351000000000001", resp.Ticket, "el recibo del lote es el ticket de consulta")
}

func TestBrazil_VerifyResponseWithoutCStatIsTransport(t *testing.T) {
	adapter := countries.Brazil()
	_, err := adapter.VerifyResponse(200, []byte(`<html>mantenimiento</html>`))
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindTransport, pkgedi.KindOf(err))
}

func TestBrazil_CancelEventEmbedsParentKeyAndReason(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))
	b.ParentAccessKey = strings.Repeat("3", 44)
	b.Reason = "Error en los datos del adquiriente de la factura"

	env, err := adapter.BuildCancel(b)
	require.NoError(t, err)

	payload := string(env.Payload)
	assert.Contains(t, payload, "<tpEvento>110111</tpEvento>", "el cancelamento es el evento 110111")
	assert.Contains(t, payload, "<chNFe>"+b.ParentAccessKey+"</chNFe>")
	assert.Contains(t, payload, "<xJust>"+b.Reason+"</xJust>")
	assert.Equal(t, "ID110111"+b.ParentAccessKey+"01", env.AccessKey)
}

func TestBrazil_CorrectionEventUsesSequence(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))
	b.ParentAccessKey = strings.Repeat("3", 44)
	b.Sequence = 2
	b.Reason = "Corrige la descripción del servicio prestado"

	env, err := adapter.BuildCorrection(b)
	require.NoError(t, err)

	payload := string(env.Payload)
	assert.Contains(t, payload, "<tpEvento>110110</tpEvento>", "la CC-e es el evento 110110")
	assert.Contains(t, payload, "<nSeqEvento>2</nSeqEvento>")
	assert.Contains(t, payload, "<xCorrecao>"+b.Reason+"</xCorrecao>")
}

func TestBrazil_NonNumericUFFallsBackToSaoPaulo(t *testing.T) {
	adapter := countries.Brazil()
	b := testBuildContext(t, "BR", brCNPJ, testPEMCertificate(t))
	b.Company.StateCode = "SP" // el catálogo usa el código IBGE, no la sigla

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err)
	assert.Equal(t, "35", env.AccessKey[:2], "sin código IBGE de dos dígitos se usa 35")
}
