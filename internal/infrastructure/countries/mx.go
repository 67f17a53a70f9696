// México: CFDI 4.0 timbrado a través de un PAC con API REST y token bearer.
// El flujo es síncrono: el PAC responde con el UUID (folio fiscal) o con el
// rechazo en la misma llamada. La anulación viaja como solicitud de
// cancelación con motivo; no existe carta de corrección (se usa otro CFDI).

package countries

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// mxNamespace espacio de nombres fijo para derivar folios fiscales
// deterministas a partir del ID de la factura.
var mxNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Mexico construye el adaptador de México.
func Mexico() *appedi.Adapter {
	a := &appedi.Adapter{
		Country: "MX",
		Name:    "PAC CFDI 4.0",
		Auth:    appedi.AuthBearer,
		Needs:   appedi.CredentialNeeds{Token: true},
		DefaultEndpoints: map[string]map[string]string{
			entity.EnvironmentProd: {
				"submit": "https://api.pac.example.mx/v4/cfdi/stamp",
				"query":  "https://api.pac.example.mx/v4/cfdi/status",
			},
			entity.EnvironmentTest: {
				"submit": "https://sandbox.pac.example.mx/v4/cfdi/stamp",
				"query":  "https://sandbox.pac.example.mx/v4/cfdi/status",
			},
		},
	}

	a.BuildIssue = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		folio := uuid.NewSHA1(mxNamespace, []byte("cfdi:"+b.Invoice.ID)).String()
		payload, err := mxStampRequest(b, folio)
		if err != nil {
			return nil, err
		}
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			Filename:    "mx-" + folio + ".xml",
			AccessKey:   folio,
		}, nil
	}

	a.BuildCancel = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		req := map[string]any{
			"uuid":   b.ParentAccessKey,
			"rfc":    b.Credentials.TaxpayerID,
			"motivo": "02", // comprobante emitido con errores sin relación
			"razon":  b.Reason,
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "serializando la cancelación", err)
		}
		cancelKey := uuid.NewSHA1(mxNamespace, []byte("cancel:"+b.ParentAccessKey)).String()
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			AccessKey:   cancelKey,
		}, nil
	}

	a.BuildStatusQuery = func(doc *entity.Document, creds *entity.CredentialSet) (*appedi.Envelope, error) {
		req := map[string]any{"uuid": doc.AccessKey, "rfc": creds.TaxpayerID}
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			AccessKey:   doc.AccessKey,
		}, nil
	}

	a.VerifyResponse = mxVerifyResponse

	a.QRPayload = func(doc *entity.Document, inv *entity.Invoice) string {
		return fmt.Sprintf("https://verificacfdi.facturaelectronica.sat.gob.mx/?id=%s&tt=%s",
			doc.AccessKey, inv.GrandTotal.StringFixed(2))
	}

	a.Warnings = func(b *appedi.BuildContext) pkgedi.Alerts {
		var alerts pkgedi.Alerts
		if b.Customer != nil && b.Customer.TaxID == "" {
			al := pkgedi.Warning("mx_customer_without_rfc",
				"el adquiriente no tiene RFC; se timbrará con RFC genérico XAXX010101000")
			al.RecordRef = b.Customer.ID
			alerts = append(alerts, al)
		}
		return alerts
	}

	return a
}

// mxStampRequest arma la petición de timbrado con el CFDI ya resumido.
func mxStampRequest(b *appedi.BuildContext, folio string) ([]byte, error) {
	rfcReceptor := b.Customer.TaxID
	if rfcReceptor == "" {
		rfcReceptor = "XAXX010101000"
	}
	lines := make([]map[string]any, 0, len(b.Lines))
	for _, l := range b.Lines {
		lines = append(lines, map[string]any{
			"descripcion":   l.Description,
			"claveUnidad":   l.UnitCode,
			"cantidad":      l.Quantity.String(),
			"valorUnitario": l.UnitPrice.StringFixed(2),
			"importe":       l.Subtotal.StringFixed(2),
			"impuesto":      l.TaxAmount().StringFixed(2),
		})
	}
	req := map[string]any{
		"folioInterno": folio,
		"serie":        b.Invoice.Series,
		"folio":        b.Invoice.Number,
		"fecha":        b.Invoice.IssueDate.In(b.Company.Location()).Format("2006-01-02T15:04:05"),
		"moneda":       b.Invoice.Currency,
		"emisor": map[string]any{
			"rfc":    b.Credentials.TaxpayerID,
			"nombre": b.Company.Name,
		},
		"receptor": map[string]any{
			"rfc":    rfcReceptor,
			"nombre": b.Customer.Name,
		},
		"conceptos": lines,
		"subTotal":  b.Invoice.NetTotal.StringFixed(2),
		"total":     b.Invoice.GrandTotal.StringFixed(2),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "serializando el CFDI", err)
	}
	return payload, nil
}

// mxPACResponse es la respuesta estándar del PAC.
type mxPACResponse struct {
	Status  string `json:"status"` // stamped | cancelled | pending | error
	UUID    string `json:"uuid"`
	Code    string `json:"code"`
	Message string `json:"message"`
	CFDI    string `json:"cfdi,omitempty"` // XML timbrado en Base64
}

func mxVerifyResponse(status int, body []byte) (*pkgedi.Response, error) {
	if status >= 500 {
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport,
			fmt.Sprintf("HTTP %d", status), "PAC no disponible")
	}
	var pac mxPACResponse
	if err := json.Unmarshal(body, &pac); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "respuesta del PAC ilegible", err)
	}

	resp := &pkgedi.Response{
		OK:      true,
		Code:    pac.Code,
		Message: pac.Message,
		Raw:     body,
	}
	switch pac.Status {
	case "stamped", "cancelled":
		resp.Authoritative = true
		resp.Accepted = true
		resp.AccessKey = pac.UUID
	case "pending":
		resp.Ticket = pac.UUID
	case "error":
		if status == http.StatusUnprocessableEntity || status == http.StatusBadRequest {
			resp.Authoritative = true
			resp.Accepted = false
			return resp, nil
		}
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, pac.Code, pac.Message)
	default:
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, pac.Code,
			fmt.Sprintf("estado %q desconocido del PAC", pac.Status))
	}
	return resp, nil
}
