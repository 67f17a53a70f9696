// Kenia: eTIMS (OSCU) de la KRA vía API REST JSON con token bearer. El flujo
// es síncrono: la respuesta trae el número de recibo y la URL de verificación.
// Es el único país del registro con buzón entrante de ventas (saleList), que
// alimenta la materialización de documentos recibidos.

package countries

import (
	"encoding/json"
	"fmt"
	"time"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// Kenya construye el adaptador de Kenia.
func Kenya() *appedi.Adapter {
	a := &appedi.Adapter{
		Country: "KE",
		Name:    "KRA eTIMS OSCU",
		Auth:    appedi.AuthBearer,
		Needs:   appedi.CredentialNeeds{Token: true},
		DefaultEndpoints: map[string]map[string]string{
			entity.EnvironmentProd: {
				"submit":  "https://etims.kra.go.ke/etims-api/saveTrnsSalesOsdc",
				"query":   "https://etims.kra.go.ke/etims-api/selectTrnsSalesStatus",
				"inbound": "https://etims.kra.go.ke/etims-api/selectTrnsPurchaseSalesList",
			},
			entity.EnvironmentTest: {
				"submit":  "https://etims-api-sbx.kra.go.ke/etims-api/saveTrnsSalesOsdc",
				"query":   "https://etims-api-sbx.kra.go.ke/etims-api/selectTrnsSalesStatus",
				"inbound": "https://etims-api-sbx.kra.go.ke/etims-api/selectTrnsPurchaseSalesList",
			},
		},
	}

	a.BuildIssue = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		key := "KE-" + onlyDigits(b.Credentials.TaxpayerID) + "-" +
			b.Invoice.Series + padLeft(onlyDigits(b.Invoice.Number), 7)
		payload, err := keSaleRequest(b, key, "S") // S = venta
		if err != nil {
			return nil, err
		}
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			Filename:    "ke-" + key + ".xml",
			AccessKey:   key,
		}, nil
	}

	// La anulación en eTIMS es una nota de crédito que referencia la venta.
	a.BuildCancel = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		key := "KE-CN-" + b.ParentAccessKey
		payload, err := keSaleRequest(b, key, "R") // R = reverso / nota de crédito
		if err != nil {
			return nil, err
		}
		return &appedi.Envelope{
			Payload:     payload,
			ContentType: "application/json",
			AccessKey:   key,
		}, nil
	}

	a.BuildStatusQuery = func(doc *entity.Document, creds *entity.CredentialSet) (*appedi.Envelope, error) {
		req := map[string]any{
			"tin":      creds.TaxpayerID,
			"invcNo":   doc.AccessKey,
			"rcptSign": doc.Ticket,
		}
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

	a.VerifyResponse = keVerifyResponse
	a.ParseInbound = keParseInbound

	a.QRPayload = func(doc *entity.Document, inv *entity.Invoice) string {
		return fmt.Sprintf("https://etims.kra.go.ke/common/link/etims/receipt/indexEtimsReceiptData?Data=%s",
			doc.AccessKey)
	}

	a.Warnings = func(b *appedi.BuildContext) pkgedi.Alerts {
		var alerts pkgedi.Alerts
		for _, l := range b.Lines {
			if l.TaxCode == "" {
				al := pkgedi.Warning("ke_line_without_tax_code",
					fmt.Sprintf("la línea %q no tiene código de impuesto; se aplicará la clase B (16%%)", l.Description))
				al.RecordRef = l.ID
				alerts = append(alerts, al)
				break
			}
		}
		return alerts
	}

	return a
}

// keSaleRequest arma el cuerpo saveTrnsSalesOsdc. rcptTyCd distingue venta (S)
// de nota de crédito (R).
func keSaleRequest(b *appedi.BuildContext, key, rcptTyCd string) ([]byte, error) {
	items := make([]map[string]any, 0, len(b.Lines))
	for i, l := range b.Lines {
		taxClass := l.TaxCode
		if taxClass == "" {
			taxClass = "B"
		}
		items = append(items, map[string]any{
			"itemSeq": i + 1,
			"itemNm":  l.Description,
			"itemCd":  l.ProductCode,
			"qtyUnit": l.UnitCode,
			"qty":     l.Quantity.String(),
			"prc":     l.UnitPrice.StringFixed(2),
			"splyAmt": l.Subtotal.StringFixed(2),
			"taxTyCd": taxClass,
			"taxAmt":  l.TaxAmount().StringFixed(2),
			"totAmt":  l.Subtotal.Add(l.TaxAmount()).StringFixed(2),
		})
	}
	req := map[string]any{
		"tin":         b.Credentials.TaxpayerID,
		"invcNo":      key,
		"rcptTyCd":    rcptTyCd,
		"salesDt":     b.Invoice.IssueDate.In(b.Company.Location()).Format("20060102"),
		"custTin":     b.Customer.TaxID,
		"custNm":      b.Customer.Name,
		"totTaxblAmt": b.Invoice.NetTotal.StringFixed(2),
		"totTaxAmt":   b.Invoice.TaxTotal.StringFixed(2),
		"totAmt":      b.Invoice.GrandTotal.StringFixed(2),
		"itemList":    items,
	}
	if rcptTyCd == "R" {
		req["orgInvcNo"] = b.ParentAccessKey
		req["rfdRsnCd"] = "06" // otros
		req["remark"] = b.Reason
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "serializando la venta eTIMS", err)
	}
	return payload, nil
}

// keAPIResponse es el sobre estándar de eTIMS: resultCd "000" es éxito.
type keAPIResponse struct {
	ResultCd  string          `json:"resultCd"`
	ResultMsg string          `json:"resultMsg"`
	Data      json.RawMessage `json:"data"`
}

type keReceiptData struct {
	RcptSign  string `json:"rcptSign"`
	IntrlData string `json:"intrlData"`
	SdcID     string `json:"sdcId"`
}

func keVerifyResponse(status int, body []byte) (*pkgedi.Response, error) {
	if status >= 500 {
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport,
			fmt.Sprintf("HTTP %d", status), "eTIMS no disponible")
	}
	var api keAPIResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "respuesta eTIMS ilegible", err)
	}

	resp := &pkgedi.Response{
		OK:      true,
		Code:    api.ResultCd,
		Message: api.ResultMsg,
		Raw:     body,
	}
	switch {
	case api.ResultCd == "000":
		resp.Authoritative = true
		resp.Accepted = true
		var data keReceiptData
		if len(api.Data) > 0 && json.Unmarshal(api.Data, &data) == nil {
			resp.Ticket = data.RcptSign
		}
	case api.ResultCd == "001": // token inválido o vencido
		return nil, pkgedi.NewError(pkgedi.ErrKindAuthentication, api.ResultCd, api.ResultMsg)
	case api.ResultCd == "":
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, "", "respuesta eTIMS sin resultCd")
	default:
		// Cualquier otro resultCd es un rechazo con autoridad.
		resp.Authoritative = true
		resp.Accepted = false
	}
	return resp, nil
}

// ── Buzón entrante ───────────────────────────────────────────────────────────

type keSaleList struct {
	ResultCd  string `json:"resultCd"`
	ResultMsg string `json:"resultMsg"`
	Data      struct {
		SaleList []keInboundSale `json:"saleList"`
	} `json:"data"`
}

type keInboundSale struct {
	SpplrTin    string          `json:"spplrTin"`
	SpplrNm     string          `json:"spplrNm"`
	SpplrInvcNo string          `json:"spplrInvcNo"`
	SalesDt     string          `json:"salesDt"` // AAAAMMDD
	TotTaxblAmt json.Number     `json:"totTaxblAmt"`
	TotTaxAmt   json.Number     `json:"totTaxAmt"`
	TotAmt      json.Number     `json:"totAmt"`
	ItemList    []keInboundItem `json:"itemList"`
}

type keInboundItem struct {
	ItemNm  string      `json:"itemNm"`
	QtyUnit string      `json:"qtyUnit"`
	TaxTyCd string      `json:"taxTyCd"`
	Qty     json.Number `json:"qty"`
	Prc     json.Number `json:"prc"`
	SplyAmt json.Number `json:"splyAmt"`
}

// keParseInbound decodifica selectTrnsPurchaseSalesList y normaliza cada venta
// recibida. Un resultCd distinto de 000 no es error: el buzón vacío responde 001.
func keParseInbound(body []byte) ([]*appedi.InboundDocument, error) {
	var list keSaleList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "saleList eTIMS ilegible", err)
	}
	if list.ResultCd != "000" {
		return nil, nil
	}

	out := make([]*appedi.InboundDocument, 0, len(list.Data.SaleList))
	for _, s := range list.Data.SaleList {
		issued, err := time.Parse("20060102", s.SalesDt)
		if err != nil {
			issued = time.Time{}
		}
		doc := &appedi.InboundDocument{
			AccessKey:   s.SpplrInvcNo,
			IssuerTaxID: s.SpplrTin,
			IssuerName:  s.SpplrNm,
			IssueDate:   issued,
			Currency:    "KES",
			NetTotal:    s.TotTaxblAmt.String(),
			TaxTotal:    s.TotTaxAmt.String(),
			GrandTotal:  s.TotAmt.String(),
		}
		raw, _ := json.Marshal(s)
		doc.Raw = raw
		for _, it := range s.ItemList {
			doc.Lines = append(doc.Lines, appedi.InboundLine{
				Description: it.ItemNm,
				UnitCode:    it.QtyUnit,
				TaxCode:     it.TaxTyCd,
				Quantity:    it.Qty.String(),
				UnitPrice:   it.Prc.String(),
				Subtotal:    it.SplyAmt.String(),
			})
		}
		out = append(out, doc)
	}
	return out, nil
}
