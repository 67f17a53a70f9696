// India: IRP (Invoice Registration Portal) vía API REST JSON con token bearer.
// El IRN es un hash SHA-256 de GSTIN + año fiscal + tipo + número, así que se
// puede derivar antes de transmitir y sirve como clave de acceso estable. La
// cancelación solo procede dentro de las 24 horas del registro; fuera de esa
// ventana el IRP la rechaza y el documento de anulación queda rechazado.

package countries

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// India construye el adaptador de India.
func India() *appedi.Adapter {
	a := &appedi.Adapter{
		Country: "IN",
		Name:    "IRP e-Invoice",
		Auth:    appedi.AuthBearer,
		Needs:   appedi.CredentialNeeds{Token: true},
		DefaultEndpoints: map[string]map[string]string{
			entity.EnvironmentProd: {
				"submit":  "https://einvoice1.gst.gov.in/eicore/v1.03/Invoice",
				"query":   "https://einvoice1.gst.gov.in/eicore/v1.03/Invoice/irn",
				"inbound": "https://einvoice1.gst.gov.in/eicore/v1.03/Invoice/inbound",
			},
			entity.EnvironmentTest: {
				"submit":  "https://einv-apisandbox.nic.in/eicore/v1.03/Invoice",
				"query":   "https://einv-apisandbox.nic.in/eicore/v1.03/Invoice/irn",
				"inbound": "https://einv-apisandbox.nic.in/eicore/v1.03/Invoice/inbound",
			},
		},
	}

	a.BuildIssue = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		gstin := b.Credentials.TaxpayerID
		if len(gstin) != 15 {
			return nil, pkgedi.NewError(pkgedi.ErrKindValidation, "",
				fmt.Sprintf("GSTIN %q inválido: se esperan 15 caracteres", gstin))
		}
		irn := inIRN(gstin, b.Invoice, b.Company)
		payload, err := inInvoiceRequest(b, irn)
		if err != nil {
			return nil, err
		}
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			Filename:    "in-" + irn + ".xml",
			AccessKey:   irn,
		}, nil
	}

	a.BuildCancel = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		req := map[string]any{
			"Irn":    b.ParentAccessKey,
			"CnlRsn": "2", // dato incorrecto
			"CnlRem": b.Reason,
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "serializando la cancelación IRN", err)
		}
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			AccessKey:   "CNL-" + b.ParentAccessKey,
		}, nil
	}

	a.BuildStatusQuery = func(doc *entity.Document, creds *entity.CredentialSet) (*appedi.Envelope, error) {
		req := map[string]any{"Irn": doc.AccessKey}
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

	a.VerifyResponse = inVerifyResponse
	a.ParseInbound = inParseInbound

	a.QRPayload = func(doc *entity.Document, inv *entity.Invoice) string {
		// El QR oficial es el SignedQRCode del IRP; cuando no está disponible se
		// codifica el IRN con el total, verificable en el portal.
		return fmt.Sprintf("irn:%s|total:%s", doc.AccessKey, inv.GrandTotal.StringFixed(2))
	}

	a.Warnings = func(b *appedi.BuildContext) pkgedi.Alerts {
		var alerts pkgedi.Alerts
		if b.Customer != nil && len(b.Customer.TaxID) != 15 {
			al := pkgedi.Warning("in_customer_without_gstin",
				"el adquiriente no tiene GSTIN de 15 caracteres; se registrará como B2C")
			al.RecordRef = b.Customer.ID
			alerts = append(alerts, al)
		}
		return alerts
	}

	return a
}

// inIRN deriva el IRN como SHA-256 hex de GSTIN|AAAA-AA|DocTyp|DocNo, el mismo
// esquema que publica el IRP. El año fiscal indio corre de abril a marzo.
func inIRN(gstin string, inv *entity.Invoice, co *entity.Company) string {
	issued := inv.IssueDate.In(co.Location())
	fyStart := issued.Year()
	if issued.Month() < time.April {
		fyStart--
	}
	fy := fmt.Sprintf("%d-%02d", fyStart, (fyStart+1)%100)
	seed := fmt.Sprintf("%s|%s|INV|%s%s", gstin, fy, inv.Series, onlyDigits(inv.Number))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// inInvoiceRequest arma el cuerpo de registro en el esquema INV-01 resumido.
func inInvoiceRequest(b *appedi.BuildContext, irn string) ([]byte, error) {
	items := make([]map[string]any, 0, len(b.Lines))
	for i, l := range b.Lines {
		items = append(items, map[string]any{
			"SlNo":       fmt.Sprintf("%d", i+1),
			"PrdDesc":    l.Description,
			"HsnCd":      l.ProductCode,
			"Unit":       l.UnitCode,
			"Qty":        l.Quantity.String(),
			"UnitPrice":  l.UnitPrice.StringFixed(2),
			"AssAmt":     l.Subtotal.StringFixed(2),
			"GstRt":      l.TaxRate.Mul(decimal.NewFromInt(100)).StringFixed(2),
			"TotItemVal": l.Subtotal.Add(l.TaxAmount()).StringFixed(2),
		})
	}
	req := map[string]any{
		"Version":  "1.1",
		"Irn":      irn,
		"TranDtls": map[string]any{"TaxSch": "GST", "SupTyp": "B2B"},
		"DocDtls": map[string]any{
			"Typ": "INV",
			"No":  b.Invoice.Series + onlyDigits(b.Invoice.Number),
			"Dt":  b.Invoice.IssueDate.In(b.Company.Location()).Format("02/01/2006"),
		},
		"SellerDtls": map[string]any{
			"Gstin": b.Credentials.TaxpayerID,
			"LglNm": b.Company.Name,
		},
		"BuyerDtls": map[string]any{
			"Gstin": b.Customer.TaxID,
			"LglNm": b.Customer.Name,
		},
		"ValDtls": map[string]any{
			"AssVal":    b.Invoice.NetTotal.StringFixed(2),
			"TotInvVal": b.Invoice.GrandTotal.StringFixed(2),
		},
		"ItemList": items,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "serializando el registro IRN", err)
	}
	return payload, nil
}

// inAPIResponse es el sobre estándar del IRP: Status 1 = éxito, 0 = error.
type inAPIResponse struct {
	Status int             `json:"Status"`
	Data   json.RawMessage `json:"Data"`
	Error  []inAPIError    `json:"ErrorDetails"`
}

type inAPIError struct {
	Code    string `json:"ErrorCode"`
	Message string `json:"ErrorMessage"`
}

type inIRNData struct {
	Irn      string `json:"Irn"`
	AckNo    int64  `json:"AckNo"`
	Status   string `json:"Status"` // ACT | CNL
	SignedQR string `json:"SignedQRCode"`
	CnlDate  string `json:"CnlDate"`
}

func inVerifyResponse(status int, body []byte) (*pkgedi.Response, error) {
	if status >= 500 {
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport,
			fmt.Sprintf("HTTP %d", status), "IRP no disponible")
	}
	var api inAPIResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "respuesta IRP ilegible", err)
	}

	if api.Status != 1 {
		code, msg := "", "registro rechazado por el IRP"
		if len(api.Error) > 0 {
			code, msg = api.Error[0].Code, api.Error[0].Message
		}
		// 1005/1006 son errores de token; el resto son rechazos con autoridad.
		if code == "1005" || code == "1006" {
			return nil, pkgedi.NewError(pkgedi.ErrKindAuthentication, code, msg)
		}
		return &pkgedi.Response{
			OK:            true,
			Authoritative: true,
			Accepted:      false,
			Code:          code,
			Message:       msg,
			Raw:           body,
		}, nil
	}

	var data inIRNData
	if err := json.Unmarshal(api.Data, &data); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "Data del IRP ilegible", err)
	}
	resp := &pkgedi.Response{
		OK:            true,
		Authoritative: true,
		Code:          data.Status,
		Raw:           body,
		AccessKey:     data.Irn,
	}
	switch data.Status {
	case "CNL":
		resp.Accepted = true
		resp.Message = "IRN cancelado el " + data.CnlDate
	default: // ACT o registro recién aceptado
		resp.Accepted = true
		resp.Message = fmt.Sprintf("IRN registrado (AckNo %d)", data.AckNo)
	}
	if data.SignedQR != "" {
		resp.Attachments = append(resp.Attachments, pkgedi.ResponseAttachment{
			Name: "signed-qr.txt", MimeType: "text/plain", Data: []byte(data.SignedQR),
		})
	}
	return resp, nil
}

// ── Buzón entrante ───────────────────────────────────────────────────────────

type inInboundList struct {
	Status int `json:"Status"`
	Data   []struct {
		Irn         string      `json:"Irn"`
		SellerGstin string      `json:"SellerGstin"`
		SellerName  string      `json:"SellerLglNm"`
		DocDt       string      `json:"DocDt"` // DD/MM/AAAA
		AssVal      json.Number `json:"AssVal"`
		TotTax      json.Number `json:"TotTax"`
		TotInvVal   json.Number `json:"TotInvVal"`
	} `json:"Data"`
}

// inParseInbound decodifica la lista de IRN recibidos contra el GSTIN propio.
func inParseInbound(body []byte) ([]*appedi.InboundDocument, error) {
	var list inInboundList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "buzón IRP ilegible", err)
	}
	if list.Status != 1 {
		return nil, nil
	}

	out := make([]*appedi.InboundDocument, 0, len(list.Data))
	for _, d := range list.Data {
		issued, err := time.Parse("02/01/2006", d.DocDt)
		if err != nil {
			issued = time.Time{}
		}
		raw, _ := json.Marshal(d)
		out = append(out, &appedi.InboundDocument{
			AccessKey:   d.Irn,
			IssuerTaxID: d.SellerGstin,
			IssuerName:  d.SellerName,
			IssueDate:   issued,
			Currency:    "INR",
			NetTotal:    d.AssVal.String(),
			TaxTotal:    d.TotTax.String(),
			GrandTotal:  d.TotInvVal.String(),
			Raw:         raw,
		})
	}
	return out, nil
}
