package countries_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/edi-gateway/internal/infrastructure/countries"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

const uyRUT = "211234567890"

func TestUruguay_EnvelopeCarriesUsernameTokenAndSignedCFE(t *testing.T) {
	adapter := countries.Uruguay()
	b := testBuildContext(t, "UY", uyRUT, testPEMCertificate(t))

	env, err := adapter.BuildIssue(b)
	require.NoError(t, err)
	assert.False(t, env.NeedsPoll, "DGI responde en la misma llamada")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(env.Payload))

	payload := string(env.Payload)
	assert.Contains(t, payload, "UsernameToken", "las credenciales viajan como WS-Security")
	assert.Contains(t, payload, "<wsse:Username>MODDATOS</wsse:Username>")

	// El CFE firmado viaja en Base64 dentro de Datain.
	cfe := uyDatain(t, env.Payload)
	assert.Contains(t, string(cfe), "<CFE", "el contenido es el CFE")
	assert.Contains(t, string(cfe), "<ds:Signature", "el CFE sale firmado")
}

func TestUruguay_VerifyResponseStates(t *testing.T) {
	adapter := countries.Uruguay()

	cases := []struct {
		name          string
		estado        string
		accepted      bool
		authoritative bool
	}{
		{"aceptado", "AE", true, true},
		{"rechazado", "BE", false, true},
		{"en proceso", "EP", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body>` +
				`<Respuesta><Estado>` + tc.estado + `</Estado><Glosa>detalle</Glosa></Respuesta>` +
				`</soapenv:Body></soapenv:Envelope>`
			resp, err := adapter.VerifyResponse(200, []byte(body))
			require.NoError(t, err)
			assert.Equal(t, tc.accepted, resp.Accepted)
			assert.Equal(t, tc.authoritative, resp.Authoritative)
		})
	}
}

func TestUruguay_SecurityFaultHaltsCountry(t *testing.T) {
	adapter := countries.Uruguay()
	body := `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body><soapenv:Fault>` +
		`<faultcode>wsse:FailedAuthentication</faultcode><faultstring>security token inválido</faultstring>` +
		`</soapenv:Fault></soapenv:Body></soapenv:Envelope>`

	_, err := adapter.VerifyResponse(500, []byte(body))
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindAuthentication, pkgedi.KindOf(err),
		"un fault de seguridad debe detener el lote del país")
}

func TestUruguay_GenericFaultIsTransport(t *testing.T) {
	adapter := countries.Uruguay()
	body := `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body><soapenv:Fault>` +
		`<faultcode>soapenv:Server</faultcode><faultstring>base de datos caída</faultstring>` +
		`</soapenv:Fault></soapenv:Body></soapenv:Envelope>`

	_, err := adapter.VerifyResponse(500, []byte(body))
	require.Error(t, err)
	assert.Equal(t, pkgedi.ErrKindTransport, pkgedi.KindOf(err))
}

func TestUruguay_CancelReferencesParent(t *testing.T) {
	adapter := countries.Uruguay()
	b := testBuildContext(t, "UY", uyRUT, testPEMCertificate(t))
	b.ParentAccessKey = "UY-211234567890-A10000042"
	b.Reason = "Error en los datos del adquiriente de la factura"

	env, err := adapter.BuildCancel(b)
	require.NoError(t, err)
	assert.Equal(t, "ANUL-"+b.ParentAccessKey, env.AccessKey)
	inner := uyDatain(t, env.Payload)
	assert.Contains(t, string(inner), "<CFERef>"+b.ParentAccessKey+"</CFERef>")
}

// uyDatain extrae y decodifica el contenido Base64 del elemento Datain.
func uyDatain(t *testing.T, payload []byte) []byte {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(payload))
	for _, el := range doc.Root().FindElements("//*") {
		if strings.HasSuffix(el.Tag, "Datain") {
			inner, err := base64.StdEncoding.DecodeString(strings.TrimSpace(el.Text()))
			require.NoError(t, err, "Datain debe ser Base64 válido")
			return inner
		}
	}
	require.FailNow(t, "falta el elemento Datain")
	return nil
}
