// Servicio de firma digital XAdES para documentos electrónicos. Cada país
// aporta su Policy (elemento referenciado, política EPES y punto de inyección);
// el pipeline de firma es común: digest C14N del documento, SignedInfo firmado
// con RSA-SHA256 y nodo ds:Signature inyectado donde el esquema lo exige.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// Service implementa pkg/edi.Signer para una política concreta.
type Service struct {
	policy Policy
	now    func() time.Time
}

var _ pkgedi.Signer = (*Service)(nil)

// New construye el servicio de firma. now es inyectable para pruebas.
func New(policy Policy) *Service {
	return &Service{policy: policy, now: time.Now}
}

// WithClock devuelve una copia del servicio con el reloj fijado.
func (s *Service) WithClock(now func() time.Time) *Service {
	return &Service{policy: s.policy, now: now}
}

// Sign firma el XML e inyecta ds:Signature según la política.
func (s *Service) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("signer: XML vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: el certificado debe incluir llave privada RSA")
	}
	x509Cert, err := leafOf(cert)
	if err != nil {
		return nil, err
	}

	// Digest del documento sin firma, canonicalizado.
	canonicalDoc, err := Canonicalize(xmlBytes)
	if err != nil {
		canonicalDoc = xmlBytes
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// SignedInfo canonicalizado y firmado.
	signedInfoXML := s.buildSignedInfo(docDigestB64)
	canonicalSignedInfo, err := Canonicalize([]byte(signedInfoXML))
	if err != nil {
		canonicalSignedInfo = []byte(signedInfoXML)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("signer: firmar SignedInfo: %w", err)
	}

	signatureXML := s.buildFullSignature(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
		x509Cert,
	)
	return s.inject(xmlBytes, signatureXML)
}

// Verify comprueba la firma de un documento producido por Sign: separa el nodo
// ds:Signature, recalcula el digest del documento y valida SignatureValue con
// el certificado embebido. Pensado para pruebas y para el diagnóstico de sobres
// retenidos.
func (s *Service) Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("signer: parsear XML firmado: %w", err)
	}
	sig := findFirst(doc.Root(), "Signature")
	if sig == nil {
		return fmt.Errorf("signer: el documento no contiene ds:Signature")
	}

	digestValue := textOf(sig, "DigestValue")
	signatureValueB64 := textOf(sig, "SignatureValue")
	certB64 := textOf(sig, "X509Certificate")
	if digestValue == "" || signatureValueB64 == "" || certB64 == "" {
		return fmt.Errorf("signer: firma incompleta")
	}

	// Digest del documento sin la firma (transform enveloped).
	sig.Parent().RemoveChild(sig)
	var stripped bytes.Buffer
	if _, err := doc.WriteTo(&stripped); err != nil {
		return fmt.Errorf("signer: serializar documento sin firma: %w", err)
	}
	canonicalDoc, err := Canonicalize(stripped.Bytes())
	if err != nil {
		return fmt.Errorf("signer: canonicalizar: %w", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)
	if base64.StdEncoding.EncodeToString(docDigest[:]) != strings.TrimSpace(digestValue) {
		return fmt.Errorf("signer: el digest del documento no coincide")
	}

	// Firma del SignedInfo reconstruido con el digest verificado.
	signedInfoXML := s.buildSignedInfo(strings.TrimSpace(digestValue))
	canonicalSignedInfo, err := Canonicalize([]byte(signedInfoXML))
	if err != nil {
		return fmt.Errorf("signer: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)

	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certB64))
	if err != nil {
		return fmt.Errorf("signer: certificado embebido inválido: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("signer: parsear certificado embebido: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signer: el certificado embebido no es RSA")
	}
	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureValueB64))
	if err != nil {
		return fmt.Errorf("signer: SignatureValue inválido: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signHash[:], signature); err != nil {
		return fmt.Errorf("signer: la firma no verifica: %w", err)
	}
	return nil
}

// Canonicalize aplica C14N 1.0 sobre los bytes XML.
func Canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// ── Construcción del nodo de firma ───────────────────────────────────────────

func (s *Service) buildSignedInfo(docDigestB64 string) string {
	uri := ""
	if s.policy.ElementID != "" {
		uri = "#" + s.policy.ElementID
	}
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="` + uri + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func (s *Service) buildFullSignature(signedInfoXML, signatureValueB64, certB64 string,
	cert *x509.Certificate) string {

	signingTime := s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	certDigestB64, issuerName, serialHex := CertDigestAndIssuerSerial(cert)

	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`<ds:Object><xades:QualifyingProperties>`)
	sb.WriteString(`<xades:SignedProperties Id="signed-props">`)
	sb.WriteString(`<xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + signingTime + `</xades:SigningTime>`)
	sb.WriteString(`<xades:SigningCertificate><xades:Cert><xades:CertDigest><ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + certDigestB64 + `</ds:DigestValue></xades:CertDigest>`)
	sb.WriteString(`<xades:IssuerSerial><ds:X509IssuerName>` + escapeXML(issuerName) + `</ds:X509IssuerName><ds:X509SerialNumber>` + serialHex + `</ds:X509SerialNumber></xades:IssuerSerial></xades:Cert></xades:SigningCertificate>`)
	if s.policy.PolicyURL != "" {
		sb.WriteString(`<xades:SignaturePolicyIdentifier><xades:SignaturePolicyId><xades:SigPolicyId><xades:Identifier>` + s.policy.PolicyURL + `</xades:Identifier></xades:SigPolicyId>`)
		if s.policy.PolicyHash != "" {
			sb.WriteString(`<xades:SigPolicyHash><ds:DigestMethod Algorithm="` + AlgSHA256 + `"/><ds:DigestValue>` + s.policy.PolicyHash + `</ds:DigestValue></xades:SigPolicyHash>`)
		}
		sb.WriteString(`</xades:SignaturePolicyId></xades:SignaturePolicyIdentifier>`)
	}
	sb.WriteString(`</xades:SignedSignatureProperties></xades:SignedProperties></xades:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// ── Inyección ────────────────────────────────────────────────────────────────

func (s *Service) inject(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("signer: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("signer: documento sin raíz")
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("signer: parsear Signature: %w", err)
	}
	sigRoot := sigDoc.Root()

	switch s.policy.Injection {
	case InjectUBLExtension:
		target, err := secondExtensionContent(root)
		if err != nil {
			return nil, err
		}
		target.AddChild(sigRoot)
	default: // InjectRootAppend
		root.AddChild(sigRoot)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("signer: serializar documento firmado: %w", err)
	}
	return out.Bytes(), nil
}

// secondExtensionContent localiza el segundo ext:ExtensionContent; el builder
// UBL deja ese hueco vacío para la firma.
func secondExtensionContent(root *etree.Element) (*etree.Element, error) {
	var ublExt *etree.Element
	for _, child := range root.ChildElements() {
		if localTag(child) == "UBLExtensions" {
			ublExt = child
			break
		}
	}
	if ublExt == nil {
		return nil, fmt.Errorf("signer: no se encontró ext:UBLExtensions")
	}
	count := 0
	for _, ext := range ublExt.ChildElements() {
		if localTag(ext) != "UBLExtension" {
			continue
		}
		for _, ec := range ext.ChildElements() {
			if localTag(ec) != "ExtensionContent" {
				continue
			}
			count++
			if count == 2 {
				return ec, nil
			}
		}
	}
	return nil, fmt.Errorf("signer: no se encontró el segundo ext:ExtensionContent")
}

func localTag(el *etree.Element) string {
	if idx := strings.Index(el.Tag, ":"); idx != -1 {
		return el.Tag[idx+1:]
	}
	return el.Tag
}

// findFirst busca en profundidad el primer elemento con ese tag local.
func findFirst(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	if localTag(el) == local {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findFirst(child, local); found != nil {
			return found
		}
	}
	return nil
}

func textOf(el *etree.Element, local string) string {
	if found := findFirst(el, local); found != nil {
		return found.Text()
	}
	return ""
}

func leafOf(cert tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("signer: certificado sin cadena")
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("signer: parsear certificado: %w", err)
	}
	return parsed, nil
}
