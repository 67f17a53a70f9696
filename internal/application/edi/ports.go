// Package edi implementa la orquestación del pipeline de facturación
// electrónica: despacho de envíos, correcciones/anulaciones y reconciliación
// entrante. Los adaptadores de país y el cliente WS se inyectan como puertos.
package edi

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// ── Sobre y contexto de construcción ─────────────────────────────────────────

// Envelope es el resultado del builder de país: el payload listo para la red.
type Envelope struct {
	Payload     []byte
	ContentType string // exactamente el valor que exige el endpoint
	Filename    string // nombre estable <país>-<access_key>.<ext>
	AccessKey   string
	NeedsPoll   bool // flujo de tres patas: submit + consulta posterior
}

// BuildContext agrupa todos los datos que un adaptador necesita para construir
// el sobre. Los builders son puros: mismo contexto, mismos bytes (módulo
// timestamps de firma).
type BuildContext struct {
	Invoice     *entity.Invoice
	Lines       []*entity.InvoiceLine
	Company     *entity.Company
	Customer    *entity.Customer
	Credentials *entity.CredentialSet

	// Para correcciones y anulaciones.
	ParentAccessKey string
	Sequence        int
	Reason          string

	Now time.Time
}

// ── Adaptador de país ─────────────────────────────────────────────────────────

// AuthStyle es el estilo de autenticación de transporte del país.
// UsernameToken (WS-Security) viaja dentro del sobre SOAP, no aquí.
type AuthStyle string

const (
	AuthNone   AuthStyle = "none"
	AuthBearer AuthStyle = "bearer"
	AuthBasic  AuthStyle = "basic"
	AuthMTLS   AuthStyle = "mtls"
)

// CredentialNeeds declara qué material exige el país para ser elegible.
type CredentialNeeds struct {
	Certificate bool
	UserPass    bool
	Token       bool
}

// Adapter es el conjunto de capacidades de un país, resuelto por código.
// Variante etiquetada: campos de función en lugar de subclases. Capacidades
// nil significan "no soportado en esta jurisdicción".
type Adapter struct {
	Country string
	Name    string

	Auth  AuthStyle
	Needs CredentialNeeds

	BuildIssue      func(*BuildContext) (*Envelope, error)
	BuildCorrection func(*BuildContext) (*Envelope, error)
	BuildCancel     func(*BuildContext) (*Envelope, error)

	// VerifyResponse decodifica el cuerpo devuelto por el WS del país.
	VerifyResponse func(status int, body []byte) (*pkgedi.Response, error)

	// ExtractAccessKey recupera la clave de acceso desde un sobre ya construido.
	ExtractAccessKey func(payload []byte) (string, error)

	// BuildStatusQuery arma la consulta de la segunda pata (nil = flujo síncrono).
	BuildStatusQuery func(doc *entity.Document, creds *entity.CredentialSet) (*Envelope, error)

	// ParseInbound decodifica el buzón entrante del país (nil = sin buzón).
	ParseInbound func(body []byte) ([]*InboundDocument, error)

	// QRPayload construye el texto del QR del documento aceptado (nil = sin QR).
	QRPayload func(doc *entity.Document, inv *entity.Invoice) string

	// Warnings calcula alertas no bloqueantes propias del país.
	Warnings func(*BuildContext) pkgedi.Alerts

	// DefaultEndpoints: ambiente → operación → URL, usados cuando el
	// CredentialSet no trae la entrada.
	DefaultEndpoints map[string]map[string]string
}

// EndpointFor resuelve la URL de la operación: primero el CredentialSet,
// después el default del adaptador para el ambiente.
func (a *Adapter) EndpointFor(creds *entity.CredentialSet, op string) (string, error) {
	if u := creds.Endpoint(op); u != "" {
		return u, nil
	}
	if byOp, ok := a.DefaultEndpoints[creds.Environment]; ok {
		if u, ok := byOp[op]; ok {
			return u, nil
		}
	}
	return "", pkgedi.NewError(pkgedi.ErrKindConfiguration, "",
		fmt.Sprintf("endpoint %q no configurado para %s/%s", op, a.Country, creds.Environment))
}

// Registry resuelve adaptadores por código de país.
type Registry map[string]*Adapter

// Lookup devuelve el adaptador del país, si existe.
func (r Registry) Lookup(country string) (*Adapter, bool) {
	a, ok := r[country]
	return a, ok
}

// Countries lista los países con adaptador.
func (r Registry) Countries() []string {
	out := make([]string, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	return out
}

// ── Cliente WS ───────────────────────────────────────────────────────────────

// Client es el puerto de salida hacia el WS del gobierno o PAC. Los reintentos,
// timeouts y el flujo submit+poll viven detrás de este puerto; el código de
// negocio nunca captura errores de transporte directamente.
type Client interface {
	// Send entrega el sobre y devuelve el resultado combinado (incluida la
	// segunda pata cuando el país la exige y el presupuesto alcanza).
	Send(ctx context.Context, adapter *Adapter, env *Envelope, creds *entity.CredentialSet) (*pkgedi.Response, error)
	// Query ejecuta una consulta de estado puntual (reconciliador).
	Query(ctx context.Context, adapter *Adapter, env *Envelope, creds *entity.CredentialSet) (*pkgedi.Response, error)
	// Fetch descarga el buzón entrante del país (pull, no push).
	Fetch(ctx context.Context, adapter *Adapter, creds *entity.CredentialSet, op string) ([]byte, error)
}

// ── Transacciones y generadores ──────────────────────────────────────────────

// TxRunner ejecuta fn dentro de una transacción con los repos atados a ella.
// La transición de estado, la respuesta y el espejo de la factura se escriben
// juntos: documento primero, espejo después.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		docs repository.DocumentRepository,
		atts repository.AttachmentRepository,
		invoices repository.InvoiceRepository,
	) error) error
}

// RepresentationGenerator produce la representación gráfica PDF del documento aceptado.
type RepresentationGenerator interface {
	Generate(doc *entity.Document, inv *entity.Invoice, company *entity.Company,
		customer *entity.Customer, lines []*entity.InvoiceLine) ([]byte, error)
}

// QRGenerator codifica el texto del QR como imagen PNG.
type QRGenerator interface {
	Generate(payload string, size int) ([]byte, error)
}

// ── Documentos entrantes ─────────────────────────────────────────────────────

// InboundDocument es un documento descubierto en el buzón del país (movimiento
// de stock OSCU, IRN indio) ya normalizado por el adaptador.
type InboundDocument struct {
	AccessKey   string
	IssuerTaxID string
	IssuerName  string
	IssueDate   time.Time
	Currency    string
	NetTotal    string // montos como string decimal; se convierten al materializar
	TaxTotal    string
	GrandTotal  string
	Lines       []InboundLine
	Raw         []byte
}

// InboundLine es una línea entrante con códigos ya mapeados por la tabla
// paramétrica del país.
type InboundLine struct {
	Description string
	UnitCode    string
	TaxCode     string
	Quantity    string
	UnitPrice   string
	TaxRate     string
	Subtotal    string
}
