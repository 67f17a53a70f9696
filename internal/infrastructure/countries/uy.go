// Uruguay: CFE (Comprobante Fiscal Electrónico) contra DGI vía SOAP. La
// autenticación viaja como WS-Security UsernameToken dentro del sobre, el CFE
// va firmado XAdES-BES como último hijo de la raíz y la respuesta llega en la
// misma llamada. Un Fault de seguridad se clasifica como error de
// autenticación para que el lote del país se detenga.

package countries

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/infrastructure/signer"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

const (
	nsSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	nsWSSE    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsCFE     = "http://cfe.dgi.gub.uy"

	uyTipoEFactura = "111"
)

// Uruguay construye el adaptador de Uruguay.
func Uruguay() *appedi.Adapter {
	signSvc := signer.New(signer.Policy{Injection: signer.InjectRootAppend})

	a := &appedi.Adapter{
		Country: "UY",
		Name:    "DGI CFE",
		Auth:    appedi.AuthNone, // UsernameToken viaja dentro del sobre SOAP
		Needs:   appedi.CredentialNeeds{Certificate: true, UserPass: true},
		DefaultEndpoints: map[string]map[string]string{
			entity.EnvironmentProd: {
				"submit": "https://efactura.dgi.gub.uy/ws/recepcion",
				"query":  "https://efactura.dgi.gub.uy/ws/consulta",
			},
			entity.EnvironmentTest: {
				"submit": "https://efactura-test.dgi.gub.uy/ws/recepcion",
				"query":  "https://efactura-test.dgi.gub.uy/ws/consulta",
			},
		},
	}

	a.BuildIssue = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		key := "UY-" + onlyDigits(b.Credentials.TaxpayerID) + "-" +
			b.Invoice.Series + padLeft(onlyDigits(b.Invoice.Number), 7)
		cfe, err := uyCFEXML(b)
		if err != nil {
			return nil, err
		}
		cert, err := signer.LoadCertificate(b.Credentials.CertData, b.Credentials.CertPassword)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindConfiguration,
				"no se pudo cargar el certificado de firma", err)
		}
		signed, err := signSvc.Sign(cfe, cert)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "fallo firmando el CFE", err)
		}
		envelope := uySoapEnvelope(b.Credentials, "EnvioCFE", signed)
		return &appedi.Envelope{
			Payload:     envelope,
			ContentType: "text/xml; charset=utf-8",
			Filename:    "uy-" + key + ".xml",
			AccessKey:   key,
		}, nil
	}

	a.BuildCancel = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		var sb strings.Builder
		sb.WriteString(`<AnulacionCFE xmlns="` + nsCFE + `">`)
		sb.WriteString(`<CFERef>` + escapeXML(b.ParentAccessKey) + `</CFERef>`)
		sb.WriteString(`<Motivo>` + escapeXML(b.Reason) + `</Motivo>`)
		sb.WriteString(`</AnulacionCFE>`)
		envelope := uySoapEnvelope(b.Credentials, "AnulacionCFE", []byte(sb.String()))
		return &appedi.Envelope{
			Payload:     envelope,
			ContentType: "text/xml; charset=utf-8",
			AccessKey:   "ANUL-" + b.ParentAccessKey,
		}, nil
	}

	a.BuildStatusQuery = func(doc *entity.Document, creds *entity.CredentialSet) (*appedi.Envelope, error) {
		var sb strings.Builder
		sb.WriteString(`<ConsultaCFE xmlns="` + nsCFE + `">`)
		sb.WriteString(`<CFERef>` + escapeXML(doc.AccessKey) + `</CFERef>`)
		sb.WriteString(`</ConsultaCFE>`)
		envelope := uySoapEnvelope(creds, "ConsultaCFE", []byte(sb.String()))
		return &appedi.Envelope{
			Payload:     envelope,
			ContentType: "text/xml; charset=utf-8",
			AccessKey:   doc.AccessKey,
		}, nil
	}

	a.VerifyResponse = uyVerifyResponse

	a.Warnings = func(b *appedi.BuildContext) pkgedi.Alerts {
		var alerts pkgedi.Alerts
		if b.Customer != nil && b.Customer.Country == "" {
			al := pkgedi.Warning("uy_customer_without_country",
				"el adquiriente no tiene país; el CFE saldrá como consumo final")
			al.RecordRef = b.Customer.ID
			alerts = append(alerts, al)
		}
		return alerts
	}

	return a
}

// uyCFEXML arma el CFE tipo e-Factura (111) sin firma.
func uyCFEXML(b *appedi.BuildContext) ([]byte, error) {
	inv, co, cu := b.Invoice, b.Company, b.Customer

	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<CFE xmlns="` + nsCFE + `" version="1.0">`)
	sb.WriteString(`<eFact><Encabezado>`)
	sb.WriteString(`<IdDoc><TipoCFE>` + uyTipoEFactura + `</TipoCFE>`)
	sb.WriteString(`<Serie>` + escapeXML(inv.Series) + `</Serie>`)
	sb.WriteString(`<Nro>` + onlyDigits(inv.Number) + `</Nro>`)
	sb.WriteString(`<FchEmis>` + inv.IssueDate.In(co.Location()).Format("2006-01-02") + `</FchEmis>`)
	sb.WriteString(`</IdDoc>`)
	sb.WriteString(`<Emisor><RUCEmisor>` + onlyDigits(b.Credentials.TaxpayerID) + `</RUCEmisor>`)
	sb.WriteString(`<RznSoc>` + escapeXML(co.Name) + `</RznSoc></Emisor>`)
	sb.WriteString(`<Receptor><DocRecep>` + escapeXML(cu.TaxID) + `</DocRecep>`)
	sb.WriteString(`<RznSocRecep>` + escapeXML(cu.Name) + `</RznSocRecep></Receptor>`)
	sb.WriteString(`<Totales><TpoMoneda>` + escapeXML(inv.Currency) + `</TpoMoneda>`)
	sb.WriteString(`<MntNeto>` + inv.NetTotal.StringFixed(2) + `</MntNeto>`)
	sb.WriteString(`<IVATasaBasica>` + inv.TaxTotal.StringFixed(2) + `</IVATasaBasica>`)
	sb.WriteString(`<MntTotal>` + inv.GrandTotal.StringFixed(2) + `</MntTotal>`)
	sb.WriteString(`</Totales>`)
	sb.WriteString(`</Encabezado><Detalle>`)
	for i, l := range b.Lines {
		sb.WriteString(fmt.Sprintf(`<Item><NroLinDet>%d</NroLinDet>`, i+1))
		sb.WriteString(`<NomItem>` + escapeXML(l.Description) + `</NomItem>`)
		sb.WriteString(`<Cantidad>` + l.Quantity.String() + `</Cantidad>`)
		sb.WriteString(`<PrecioUnitario>` + l.UnitPrice.StringFixed(2) + `</PrecioUnitario>`)
		sb.WriteString(`<MontoItem>` + l.Subtotal.StringFixed(2) + `</MontoItem>`)
		sb.WriteString(`</Item>`)
	}
	sb.WriteString(`</Detalle></eFact>`)
	sb.WriteString(`</CFE>`)
	return []byte(sb.String()), nil
}

// uySoapEnvelope envuelve el cuerpo con el sobre SOAP y el UsernameToken.
func uySoapEnvelope(creds *entity.CredentialSet, operation string, inner []byte) []byte {
	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<soapenv:Envelope xmlns:soapenv="` + nsSoapEnv + `">`)
	sb.WriteString(`<soapenv:Header>`)
	sb.WriteString(`<wsse:Security xmlns:wsse="` + nsWSSE + `"><wsse:UsernameToken>`)
	sb.WriteString(`<wsse:Username>` + escapeXML(creds.Username) + `</wsse:Username>`)
	sb.WriteString(`<wsse:Password>` + escapeXML(creds.Password) + `</wsse:Password>`)
	sb.WriteString(`</wsse:UsernameToken></wsse:Security>`)
	sb.WriteString(`</soapenv:Header>`)
	sb.WriteString(`<soapenv:Body><Datain xmlns="` + nsCFE + `" operacion="` + operation + `">`)
	sb.WriteString(base64.StdEncoding.EncodeToString(inner))
	sb.WriteString(`</Datain></soapenv:Body>`)
	sb.WriteString(`</soapenv:Envelope>`)
	return []byte(sb.String())
}

// uyVerifyResponse decodifica el sobre SOAP de DGI. Un Fault wsse se traduce a
// error de autenticación; el resto de faults a transporte.
func uyVerifyResponse(status int, body []byte) (*pkgedi.Response, error) {
	if status >= 500 && len(body) == 0 {
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport,
			fmt.Sprintf("HTTP %d", status), "DGI no disponible")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "respuesta DGI ilegible", err)
	}

	if fault := brFindText(doc.Root(), "faultstring"); fault != "" {
		code := brFindText(doc.Root(), "faultcode")
		if strings.Contains(strings.ToLower(code+fault), "security") ||
			strings.Contains(strings.ToLower(code+fault), "authent") {
			return nil, pkgedi.NewError(pkgedi.ErrKindAuthentication, code, fault)
		}
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, code, fault)
	}

	estado := brFindText(doc.Root(), "Estado")
	motivo := brFindText(doc.Root(), "Glosa")
	resp := &pkgedi.Response{OK: true, Code: estado, Message: motivo, Raw: body}
	switch estado {
	case "AE": // aceptado
		resp.Authoritative = true
		resp.Accepted = true
	case "BE": // rechazado
		resp.Authoritative = true
		resp.Accepted = false
	case "": // sin estado: respuesta inesperada
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, "", "respuesta DGI sin Estado")
	default: // en proceso
	}
	return resp, nil
}
