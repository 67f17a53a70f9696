// Constantes XMLDSig / XAdES compartidas por las políticas de firma de los países.

package signer

const (
	NamespaceDS    = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"

	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2000/09/xmldsig#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// InjectionMode indica dónde se inyecta el nodo ds:Signature.
type InjectionMode string

const (
	// InjectUBLExtension inyecta en el segundo ext:ExtensionContent (UBL: PE, BR).
	InjectUBLExtension InjectionMode = "ubl-extension"
	// InjectRootAppend agrega la firma como último hijo de la raíz (CFE uruguayo).
	InjectRootAppend InjectionMode = "root-append"
)

// Policy parametriza la firma por jurisdicción: elemento referenciado, política
// XAdES-EPES (vacía = XAdES-BES) y punto de inyección.
type Policy struct {
	// ElementID es el Id del elemento al que apunta la Reference ("" firma el
	// documento completo con URI vacío).
	ElementID string
	// PolicyURL y PolicyHash identifican la política de firma cuando la
	// autoridad exige XAdES-EPES.
	PolicyURL  string
	PolicyHash string
	Injection  InjectionMode
}
