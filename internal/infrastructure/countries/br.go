// Brasil: NF-e modelo 55 contra SEFAZ. Clave de acceso de 44 dígitos con
// dígito verificador módulo 11, firma XAdES sobre infNFe, transporte mTLS y
// flujo de tres patas (lote, recibo, protocolo). La anulación es un evento de
// cancelamento y la corrección una Carta de Correção Eletrônica (CC-e).

package countries

import (
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
	nsNFe = "http://www.portalfiscal.inf.br/nfe"

	brCStatAuthorized    = "100"
	brCStatLoteReceived  = "103"
	brCStatLoteInProcess = "105"
	brCStatCancelled     = "101"
	brCStatEventOK       = "135"

	brEventCancel     = "110111"
	brEventCorrection = "110110"
)

// Brazil construye el adaptador de Brasil.
func Brazil() *appedi.Adapter {
	signSvc := signer.New(signer.Policy{
		Injection: signer.InjectRootAppend,
	})

	a := &appedi.Adapter{
		Country: "BR",
		Name:    "SEFAZ NF-e",
		Auth:    appedi.AuthMTLS,
		Needs:   appedi.CredentialNeeds{Certificate: true},
		DefaultEndpoints: map[string]map[string]string{
			entity.EnvironmentProd: {
				"submit": "https://nfe.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
				"query":  "https://nfe.svrs.rs.gov.br/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx",
			},
			entity.EnvironmentTest: {
				"submit": "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
				"query":  "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx",
			},
		},
	}

	a.BuildIssue = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		key, err := brAccessKey(b)
		if err != nil {
			return nil, err
		}
		raw, err := brInvoiceXML(b, key)
		if err != nil {
			return nil, err
		}
		signed, err := brSign(signSvc, raw, b)
		if err != nil {
			return nil, err
		}
		return &appedi.Envelope{
			Payload:     signed,
			ContentType: "application/xml; charset=utf-8",
			Filename:    "br-" + key + ".xml",
			AccessKey:   key,
			NeedsPoll:   true,
		}, nil
	}

	a.BuildCancel = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		return brEvent(signSvc, b, brEventCancel, b.Reason, 1)
	}

	a.BuildCorrection = func(b *appedi.BuildContext) (*appedi.Envelope, error) {
		return brEvent(signSvc, b, brEventCorrection, b.Reason, b.Sequence)
	}

	a.BuildStatusQuery = func(doc *entity.Document, creds *entity.CredentialSet) (*appedi.Envelope, error) {
		amb := "1"
		if creds.Environment != entity.EnvironmentProd {
			amb = "2"
		}
		var sb strings.Builder
		sb.WriteString(`<consSitNFe xmlns="` + nsNFe + `" versao="4.00">`)
		sb.WriteString(`<tpAmb>` + amb + `</tpAmb>`)
		sb.WriteString(`<xServ>CONSULTAR</xServ>`)
		sb.WriteString(`<chNFe>` + doc.AccessKey + `</chNFe>`)
		sb.WriteString(`</consSitNFe>`)
		return &appedi.Envelope{
			Payload:     []byte(sb.String()),
			ContentType: "application/xml; charset=utf-8",
			AccessKey:   doc.AccessKey,
		}, nil
	}

	a.VerifyResponse = brVerifyResponse
	a.ExtractAccessKey = brExtractAccessKey

	a.QRPayload = func(doc *entity.Document, _ *entity.Invoice) string {
		return "https://www.nfe.fazenda.gov.br/portal/consultaRecaptcha.aspx?chNFe=" + doc.AccessKey
	}

	a.Warnings = func(b *appedi.BuildContext) pkgedi.Alerts {
		var alerts pkgedi.Alerts
		if b.Customer != nil && onlyDigits(b.Customer.TaxID) == "" {
			al := pkgedi.Warning("br_customer_without_document",
				"el adquiriente no tiene CPF/CNPJ; la NF-e saldrá sin identificación del destinatário")
			al.RecordRef = b.Customer.ID
			alerts = append(alerts, al)
		}
		return alerts
	}

	return a
}

// ── Clave de acceso ──────────────────────────────────────────────────────────

// brAccessKey compone la clave de 44 dígitos:
// cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) DV(1).
// cNF deriva del ID de la factura para que el builder sea determinista.
func brAccessKey(b *appedi.BuildContext) (string, error) {
	cnpj := onlyDigits(b.Credentials.TaxpayerID)
	if len(cnpj) != 14 {
		return "", pkgedi.NewError(pkgedi.ErrKindValidation, "",
			fmt.Sprintf("CNPJ %q inválido: se esperan 14 dígitos", b.Credentials.TaxpayerID))
	}
	// La validez del código contra el catálogo ya la advirtió el despachador;
	// aquí solo importa la forma: dos dígitos o el valor por defecto 35 (SP).
	uf := onlyDigits(b.Company.StateCode)
	if len(uf) != 2 {
		uf = "35"
	}
	aamm := b.Invoice.IssueDate.In(b.Company.Location()).Format("0601")
	serie := padLeft(onlyDigits(b.Invoice.Series), 3)
	nnf := padLeft(onlyDigits(b.Invoice.Number), 9)
	cnf := padLeft(onlyDigits(b.Invoice.ID), 8)

	base43 := uf + aamm + cnpj + "55" + serie + nnf + "1" + cnf
	if len(base43) != 43 {
		return "", pkgedi.NewError(pkgedi.ErrKindValidation, "",
			fmt.Sprintf("clave base de %d dígitos, se esperaban 43", len(base43)))
	}
	return base43 + brCheckDigit(base43), nil
}

// brCheckDigit calcula el dígito verificador módulo 11 con pesos 2..9 de
// derecha a izquierda. Resto 0 o 1 produce dígito 0.
func brCheckDigit(base43 string) string {
	weight := 2
	sum := 0
	for i := len(base43) - 1; i >= 0; i-- {
		sum += int(base43[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rem := sum % 11
	if rem < 2 {
		return "0"
	}
	return fmt.Sprintf("%d", 11-rem)
}

// ── Construcción y firma ─────────────────────────────────────────────────────

func brSign(svc *signer.Service, raw []byte, b *appedi.BuildContext) ([]byte, error) {
	cert, err := signer.LoadCertificate(b.Credentials.CertData, b.Credentials.CertPassword)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindConfiguration,
			"no se pudo cargar el certificado de firma", err)
	}
	signed, err := svc.Sign(raw, cert)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindValidation, "fallo firmando la NF-e", err)
	}
	return signed, nil
}

func brInvoiceXML(b *appedi.BuildContext, key string) ([]byte, error) {
	inv, co, cu := b.Invoice, b.Company, b.Customer
	issue := inv.IssueDate.In(co.Location()).Format("2006-01-02T15:04:05-07:00")
	amb := "1"
	if b.Credentials.Environment != entity.EnvironmentProd {
		amb = "2"
	}

	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<NFe xmlns="` + nsNFe + `">`)
	sb.WriteString(`<infNFe Id="NFe` + key + `" versao="4.00">`)

	sb.WriteString(`<ide>`)
	sb.WriteString(`<cUF>` + key[:2] + `</cUF>`)
	sb.WriteString(`<natOp>VENDA</natOp>`)
	sb.WriteString(`<mod>55</mod>`)
	sb.WriteString(`<serie>` + strings.TrimLeft(key[22:25], "0") + `</serie>`)
	sb.WriteString(`<nNF>` + strings.TrimLeft(key[25:34], "0") + `</nNF>`)
	sb.WriteString(`<dhEmi>` + issue + `</dhEmi>`)
	sb.WriteString(`<tpAmb>` + amb + `</tpAmb>`)
	sb.WriteString(`<cDV>` + key[43:] + `</cDV>`)
	sb.WriteString(`</ide>`)

	sb.WriteString(`<emit>`)
	sb.WriteString(`<CNPJ>` + onlyDigits(b.Credentials.TaxpayerID) + `</CNPJ>`)
	sb.WriteString(`<xNome>` + escapeXML(co.Name) + `</xNome>`)
	sb.WriteString(`</emit>`)

	sb.WriteString(`<dest>`)
	if doc := onlyDigits(cu.TaxID); len(doc) == 14 {
		sb.WriteString(`<CNPJ>` + doc + `</CNPJ>`)
	} else if doc != "" {
		sb.WriteString(`<CPF>` + doc + `</CPF>`)
	}
	sb.WriteString(`<xNome>` + escapeXML(cu.Name) + `</xNome>`)
	sb.WriteString(`</dest>`)

	for i, l := range b.Lines {
		sb.WriteString(fmt.Sprintf(`<det nItem="%d">`, i+1))
		sb.WriteString(`<prod>`)
		sb.WriteString(`<xProd>` + escapeXML(l.Description) + `</xProd>`)
		sb.WriteString(`<uCom>` + escapeXML(l.UnitCode) + `</uCom>`)
		sb.WriteString(`<qCom>` + l.Quantity.String() + `</qCom>`)
		sb.WriteString(`<vUnCom>` + l.UnitPrice.StringFixed(2) + `</vUnCom>`)
		sb.WriteString(`<vProd>` + l.Subtotal.StringFixed(2) + `</vProd>`)
		sb.WriteString(`</prod>`)
		sb.WriteString(`<imposto><ICMS><vICMS>` + l.TaxAmount().StringFixed(2) + `</vICMS></ICMS></imposto>`)
		sb.WriteString(`</det>`)
	}

	sb.WriteString(`<total><ICMSTot>`)
	sb.WriteString(`<vBC>` + inv.NetTotal.StringFixed(2) + `</vBC>`)
	sb.WriteString(`<vICMS>` + inv.TaxTotal.StringFixed(2) + `</vICMS>`)
	sb.WriteString(`<vNF>` + inv.GrandTotal.StringFixed(2) + `</vNF>`)
	sb.WriteString(`</ICMSTot></total>`)

	sb.WriteString(`</infNFe>`)
	sb.WriteString(`</NFe>`)
	return []byte(sb.String()), nil
}

// brEvent arma el XML de evento (cancelamento o CC-e) firmado.
func brEvent(svc *signer.Service, b *appedi.BuildContext, eventType, text string, seq int) (*appedi.Envelope, error) {
	if b.ParentAccessKey == "" {
		return nil, pkgedi.NewError(pkgedi.ErrKindValidation, "",
			"el evento requiere la clave de acceso del documento autorizado")
	}
	amb := "1"
	if b.Credentials.Environment != entity.EnvironmentProd {
		amb = "2"
	}
	when := b.Now.Format("2006-01-02T15:04:05-07:00")
	eventID := "ID" + eventType + b.ParentAccessKey + padLeft(fmt.Sprintf("%d", seq), 2)
	detail := "Cancelamento"
	payloadField := `<xJust>` + escapeXML(text) + `</xJust>`
	if eventType == brEventCorrection {
		detail = "Carta de Correcao"
		payloadField = `<xCorrecao>` + escapeXML(text) + `</xCorrecao>`
	}

	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<evento xmlns="` + nsNFe + `" versao="1.00">`)
	sb.WriteString(`<infEvento Id="` + eventID + `">`)
	sb.WriteString(`<tpAmb>` + amb + `</tpAmb>`)
	sb.WriteString(`<CNPJ>` + onlyDigits(b.Credentials.TaxpayerID) + `</CNPJ>`)
	sb.WriteString(`<chNFe>` + b.ParentAccessKey + `</chNFe>`)
	sb.WriteString(`<dhEvento>` + when + `</dhEvento>`)
	sb.WriteString(`<tpEvento>` + eventType + `</tpEvento>`)
	sb.WriteString(fmt.Sprintf(`<nSeqEvento>%d</nSeqEvento>`, seq))
	sb.WriteString(`<detEvento versao="1.00"><descEvento>` + detail + `</descEvento>` + payloadField + `</detEvento>`)
	sb.WriteString(`</infEvento>`)
	sb.WriteString(`</evento>`)

	signed, err := brSign(svc, []byte(sb.String()), b)
	if err != nil {
		return nil, err
	}
	return &appedi.Envelope{
		Payload:     signed,
		ContentType: "application/xml; charset=utf-8",
		AccessKey:   eventID,
		NeedsPoll:   true,
	}, nil
}

// ── Decodificación de respuestas ─────────────────────────────────────────────

// brVerifyResponse interpreta el retorno de SEFAZ por cStat. 100/101/135 son
// decisiones favorables; 103/105 dejan el documento en vuelo; el resto de
// códigos son rechazos definitivos.
func brVerifyResponse(status int, body []byte) (*pkgedi.Response, error) {
	if status >= 500 {
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport,
			fmt.Sprintf("HTTP %d", status), "SEFAZ no disponible")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "respuesta SEFAZ ilegible", err)
	}
	cStat := brFindText(doc.Root(), "cStat")
	xMotivo := brFindText(doc.Root(), "xMotivo")
	recibo := brFindText(doc.Root(), "nRec")
	chave := brFindText(doc.Root(), "chNFe")

	resp := &pkgedi.Response{
		OK:      true,
		Code:    cStat,
		Message: xMotivo,
		Ticket:  recibo,
		Raw:     body,
	}
	switch cStat {
	case brCStatAuthorized, brCStatCancelled, brCStatEventOK:
		resp.Authoritative = true
		resp.Accepted = true
		resp.AccessKey = chave
	case brCStatLoteReceived, brCStatLoteInProcess:
		// Recibido, sin decisión aún.
	case "":
		return nil, pkgedi.NewError(pkgedi.ErrKindTransport, "", "respuesta SEFAZ sin cStat")
	default:
		resp.Authoritative = true
		resp.Accepted = false
	}
	return resp, nil
}

func brFindText(el *etree.Element, local string) string {
	if el == nil {
		return ""
	}
	tag := el.Tag
	if idx := strings.Index(tag, ":"); idx != -1 {
		tag = tag[idx+1:]
	}
	if tag == local {
		return el.Text()
	}
	for _, child := range el.ChildElements() {
		if t := brFindText(child, local); t != "" {
			return t
		}
	}
	return ""
}

// brExtractAccessKey recupera la clave desde el atributo Id del infNFe.
func brExtractAccessKey(payload []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return "", fmt.Errorf("br: parsear NF-e: %w", err)
	}
	var walk func(el *etree.Element) string
	walk = func(el *etree.Element) string {
		if el == nil {
			return ""
		}
		if strings.HasSuffix(el.Tag, "infNFe") || el.Tag == "infNFe" {
			id := el.SelectAttrValue("Id", "")
			return strings.TrimPrefix(id, "NFe")
		}
		for _, child := range el.ChildElements() {
			if key := walk(child); key != "" {
				return key
			}
		}
		return ""
	}
	key := walk(doc.Root())
	if len(key) != 44 {
		return "", fmt.Errorf("br: clave de acceso ausente o malformada")
	}
	return key, nil
}
