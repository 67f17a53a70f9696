// Perú: factura UBL 2.1 contra SUNAT. El XML firmado se comprime en ZIP y
// viaja en un sobre SOAP con UsernameToken (RUC+usuario SOL). sendBill es
// síncrono y devuelve el CDR (Constancia de Recepción) como ZIP en Base64; la
// anulación va por comunicación de baja, que devuelve un ticket y exige
// consulta posterior con getStatus.

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
	"github.com/jhoicas/edi-gateway/internal/infrastructure/webservice"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

const (
	nsUBLInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsUBLCac     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsUBLCbc     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	nsUBLExt     = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"

	peInvoiceElementID = "comprobante"
)

// Peru construye el adaptador de Perú.
func Peru() *appedi.Adapter {
	signSvc := signer.New(signer.Policy{
		ElementID: peInvoiceElementID,
		Injection: signer.InjectUBLExtension,
	})

	a := &appedi.Adapter{
		Country: "PE",
		Name:    "SUNAT UBL 2.1",
		Auth:    appedi.AuthNone, // credenciales SOL dentro del sobre SOAP
		Needs:   appedi.CredentialNeeds{Certificate: true, UserPass: true},
		DefaultEndpoints: map[string]map[string]string{
			entity.EnvironmentProd: {
				"submit": "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService",
				"query":  "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService",
			},
			entity.EnvironmentTest: {
				"submit": "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService",
				"query":  "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService",
			},
		},
	}

	a.BuildIssue = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		ruc := onlyDigits(b.Credentials.TaxpayerID)
		if len(ruc) != 11 {
			return nil, pkgedi.NewError(pkgedi.ErrKindValidation, "",
				fmt.Sprintf("RUC %q inválido: se esperan 11 dígitos", b.Credentials.TaxpayerID))
		}
		docName := fmt.Sprintf("%s-01-%s-%s", ruc,
			strings.TrimSpace(b.Invoice.Series), padLeft(onlyDigits(b.Invoice.Number), 8))

		raw, err := peInvoiceXML(b)
		if err != nil {
			return nil, err
		}
		cert, err := signer.LoadCertificate(b.Credentials.CertData, b.Credentials.CertPassword)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindConfiguration,
				"no se pudo cargar el certificado de firma", err)
		}
		signed, err := signSvc.Sign(raw, cert)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "fallo firmando la factura UBL", err)
		}
		zipped, err := webservice.CompressXMLToZip(signed, docName+".xml")
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "fallo comprimiendo el envío", err)
		}
		envelope := peSoapEnvelope(b.Credentials, "sendBill", docName+".zip", zipped)
		return &appedi.Envelope{
			Payload:     envelope,
			ContentType: "text/xml; charset=utf-8",
			Filename:    "pe-" + docName + ".xml",
			AccessKey:   docName,
		}, nil
	}

	a.BuildCancel = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		ruc := onlyDigits(b.Credentials.TaxpayerID)
		baja := fmt.Sprintf("RA-%s-1", b.Now.Format("20060102"))
		var sb strings.Builder
		sb.WriteString(xml.Header)
		sb.WriteString(`<VoidedDocuments xmlns="urn:sunat:names:specification:ubl:peru:schema:xsd:VoidedDocuments-1">`)
		sb.WriteString(`<ID>` + baja + `</ID>`)
		sb.WriteString(`<ReferenceID>` + escapeXML(b.ParentAccessKey) + `</ReferenceID>`)
		sb.WriteString(`<VoidReasonDescription>` + escapeXML(b.Reason) + `</VoidReasonDescription>`)
		sb.WriteString(`</VoidedDocuments>`)

		zipped, err := webservice.CompressXMLToZip([]byte(sb.String()), ruc+"-"+baja+".xml")
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "fallo comprimiendo la baja", err)
		}
		envelope := peSoapEnvelope(b.Credentials, "sendSummary", ruc+"-"+baja+".zip", zipped)
		return &appedi.Envelope{
			Payload:     envelope,
			ContentType: "text/xml; charset=utf-8",
			AccessKey:   ruc + "-" + baja,
			NeedsPoll:   true, // la baja devuelve ticket; getStatus decide
		}, nil
	}

	a.BuildStatusQuery = func(doc *entity.Document, creds *entity.CredentialSet) (*appedi.Envelope, error) {
		if doc.Ticket == "" {
			return nil, pkgedi.NewError(pkgedi.ErrKindValidation, "",
				"la consulta getStatus requiere el ticket de SUNAT")
		}
		var sb strings.Builder
		sb.WriteString(`<ser:getStatus xmlns:ser="http://service.sunat.gob.pe">`)
		sb.WriteString(`<ticket>` + escapeXML(doc.Ticket) + `</ticket>`)
		sb.WriteString(`</ser:getStatus>`)
		envelope := peSoapWrap(creds, sb.String())
		return &appedi.Envelope{
			Payload:     envelope,
			ContentType: "text/xml; charset=utf-8",
			AccessKey:   doc.AccessKey,
		}, nil
	}

	a.VerifyResponse = peVerifyResponse

	a.Warnings = func(b *appedi.BuildContext) pkgedi.Alerts {
		var alerts pkgedi.Alerts
		if b.Customer != nil && len(onlyDigits(b.Customer.TaxID)) != 11 {
			al := pkgedi.Warning("pe_customer_without_ruc",
				"el adquiriente no tiene RUC de 11 dígitos; se emitirá como boleta a documento extranjero")
			al.RecordRef = b.Customer.ID
			alerts = append(alerts, al)
		}
		return alerts
	}

	return a
}

// peInvoiceXML arma la factura UBL 2.1 con los dos ExtensionContent: el
// primero para datos adicionales, el segundo vacío para la firma.
func peInvoiceXML(b *appedi.BuildContext) ([]byte, error) {
	inv, co, cu := b.Invoice, b.Company, b.Customer

	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<Invoice xmlns="` + nsUBLInvoice + `" xmlns:cac="` + nsUBLCac +
		`" xmlns:cbc="` + nsUBLCbc + `" xmlns:ext="` + nsUBLExt + `" Id="` + peInvoiceElementID + `">`)
	sb.WriteString(`<ext:UBLExtensions>`)
	sb.WriteString(`<ext:UBLExtension><ext:ExtensionContent><AdditionalInformation/></ext:ExtensionContent></ext:UBLExtension>`)
	sb.WriteString(`<ext:UBLExtension><ext:ExtensionContent></ext:ExtensionContent></ext:UBLExtension>`)
	sb.WriteString(`</ext:UBLExtensions>`)
	sb.WriteString(`<cbc:UBLVersionID>2.1</cbc:UBLVersionID>`)
	sb.WriteString(`<cbc:CustomizationID>2.0</cbc:CustomizationID>`)
	sb.WriteString(`<cbc:ID>` + escapeXML(inv.Series) + `-` + padLeft(onlyDigits(inv.Number), 8) + `</cbc:ID>`)
	sb.WriteString(`<cbc:IssueDate>` + inv.IssueDate.In(co.Location()).Format("2006-01-02") + `</cbc:IssueDate>`)
	sb.WriteString(`<cbc:InvoiceTypeCode>01</cbc:InvoiceTypeCode>`)
	sb.WriteString(`<cbc:DocumentCurrencyCode>` + escapeXML(inv.Currency) + `</cbc:DocumentCurrencyCode>`)

	sb.WriteString(`<cac:AccountingSupplierParty><cac:Party>`)
	sb.WriteString(`<cac:PartyIdentification><cbc:ID schemeID="6">` + onlyDigits(b.Credentials.TaxpayerID) + `</cbc:ID></cac:PartyIdentification>`)
	sb.WriteString(`<cac:PartyLegalEntity><cbc:RegistrationName>` + escapeXML(co.Name) + `</cbc:RegistrationName></cac:PartyLegalEntity>`)
	sb.WriteString(`</cac:Party></cac:AccountingSupplierParty>`)

	sb.WriteString(`<cac:AccountingCustomerParty><cac:Party>`)
	sb.WriteString(`<cac:PartyIdentification><cbc:ID schemeID="6">` + escapeXML(cu.TaxID) + `</cbc:ID></cac:PartyIdentification>`)
	sb.WriteString(`<cac:PartyLegalEntity><cbc:RegistrationName>` + escapeXML(cu.Name) + `</cbc:RegistrationName></cac:PartyLegalEntity>`)
	sb.WriteString(`</cac:Party></cac:AccountingCustomerParty>`)

	sb.WriteString(`<cac:TaxTotal><cbc:TaxAmount currencyID="` + escapeXML(inv.Currency) + `">` +
		inv.TaxTotal.StringFixed(2) + `</cbc:TaxAmount></cac:TaxTotal>`)
	sb.WriteString(`<cac:LegalMonetaryTotal>`)
	sb.WriteString(`<cbc:LineExtensionAmount currencyID="` + escapeXML(inv.Currency) + `">` + inv.NetTotal.StringFixed(2) + `</cbc:LineExtensionAmount>`)
	sb.WriteString(`<cbc:PayableAmount currencyID="` + escapeXML(inv.Currency) + `">` + inv.GrandTotal.StringFixed(2) + `</cbc:PayableAmount>`)
	sb.WriteString(`</cac:LegalMonetaryTotal>`)

	for i, l := range b.Lines {
		sb.WriteString(`<cac:InvoiceLine>`)
		sb.WriteString(fmt.Sprintf(`<cbc:ID>%d</cbc:ID>`, i+1))
		sb.WriteString(`<cbc:InvoicedQuantity unitCode="` + escapeXML(l.UnitCode) + `">` + l.Quantity.String() + `</cbc:InvoicedQuantity>`)
		sb.WriteString(`<cbc:LineExtensionAmount currencyID="` + escapeXML(inv.Currency) + `">` + l.Subtotal.StringFixed(2) + `</cbc:LineExtensionAmount>`)
		sb.WriteString(`<cac:Item><cbc:Description>` + escapeXML(l.Description) + `</cbc:Description></cac:Item>`)
		sb.WriteString(`<cac:Price><cbc:PriceAmount currencyID="` + escapeXML(inv.Currency) + `">` + l.UnitPrice.StringFixed(2) + `</cbc:PriceAmount></cac:Price>`)
		sb.WriteString(`</cac:InvoiceLine>`)
	}
	sb.WriteString(`</Invoice>`)
	return []byte(sb.String()), nil
}

// peSoapEnvelope arma el sobre de sendBill/sendSummary con el ZIP en Base64.
func peSoapEnvelope(creds *entity.CredentialSet, operation, zipName string, zipBytes []byte) []byte {
	var body strings.Builder
	body.WriteString(`<ser:` + operation + ` xmlns:ser="http://service.sunat.gob.pe">`)
	body.WriteString(`<fileName>` + escapeXML(zipName) + `</fileName>`)
	body.WriteString(`<contentFile>` + base64.StdEncoding.EncodeToString(zipBytes) + `</contentFile>`)
	body.WriteString(`</ser:` + operation + `>`)
	return peSoapWrap(creds, body.String())
}

// peSoapWrap envuelve el cuerpo con Envelope y UsernameToken SOL.
func peSoapWrap(creds *entity.CredentialSet, inner string) []byte {
	user := onlyDigits(creds.TaxpayerID) + creds.Username
	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<soapenv:Envelope xmlns:soapenv="` + nsSoapEnv + `">`)
	sb.WriteString(`<soapenv:Header>`)
	sb.WriteString(`<wsse:Security xmlns:wsse="` + nsWSSE + `"><wsse:UsernameToken>`)
	sb.WriteString(`<wsse:Username>` + escapeXML(user) + `</wsse:Username>`)
	sb.WriteString(`<wsse:Password>` + escapeXML(creds.Password) + `</wsse:Password>`)
	sb.WriteString(`</wsse:UsernameToken></wsse:Security>`)
	sb.WriteString(`</soapenv:Header>`)
	sb.WriteString(`<soapenv:Body>` + inner + `</soapenv:Body>`)
	sb.WriteString(`</soapenv:Envelope>`)
	return []byte(sb.String())
}

// peVerifyResponse decodifica la respuesta de SUNAT: CDR en applicationResponse,
// ticket de sendSummary o Fault. El código 0 del CDR es aceptación; 4xxx es
// aceptación con observaciones; el resto rechazo.
func peVerifyResponse(status int, body []byte) (*pkgedi.Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "respuesta SUNAT ilegible", err)
	}

	if fault := brFindText(doc.Root(), "faultstring"); fault != "" {
		code := brFindText(doc.Root(), "faultcode")
		// Los faults de credenciales SOL llevan códigos 0102/0103/0104.
		if strings.Contains(fault, "0102") || strings.Contains(fault, "0103") ||
			strings.Contains(fault, "0104") || strings.Contains(strings.ToLower(code), "security") {
			return nil, pkgedi.NewError(pkgedi.ErrKindAuthentication, code, fault)
		}
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, code, fault)
	}

	if ticket := brFindText(doc.Root(), "ticket"); ticket != "" {
		return &pkgedi.Response{OK: true, Ticket: ticket, Code: "ticket",
			Message: "envío aceptado; pendiente de getStatus", Raw: body}, nil
	}

	appResp := brFindText(doc.Root(), "applicationResponse")
	if appResp == "" {
		if cdrStatus := brFindText(doc.Root(), "statusCode"); cdrStatus != "" {
			// getStatus sin contenido: 98 en proceso, 99 con contenido ausente.
			if cdrStatus == "98" {
				return &pkgedi.Response{OK: true, Code: cdrStatus,
					Message: "ticket en proceso", Raw: body}, nil
			}
		}
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, "", "respuesta SUNAT sin CDR ni ticket")
	}

	zipBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(appResp))
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "CDR en Base64 inválido", err)
	}
	cdrXML, err := webservice.ExtractSingleXML(zipBytes)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "CDR ZIP inválido", err)
	}
	cdr := etree.NewDocument()
	if err := cdr.ReadFromBytes(cdrXML); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "CDR XML inválido", err)
	}
	code := brFindText(cdr.Root(), "ResponseCode")
	desc := brFindText(cdr.Root(), "Description")

	resp := &pkgedi.Response{
		OK:            true,
		Authoritative: true,
		Code:          code,
		Message:       desc,
		Raw:           body,
		Attachments: []pkgedi.ResponseAttachment{{
			Name: "cdr.xml", MimeType: "application/xml", Data: cdrXML,
		}},
	}
	// 0 = aceptado; 4000-4999 = aceptado con observaciones.
	resp.Accepted = code == "0" || (len(code) == 4 && code[0] == '4')
	return resp, nil
}
