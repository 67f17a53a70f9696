package edi

import (
	"context"
	"fmt"
	"strings"

	domedi "github.com/jhoicas/edi-gateway/internal/domain/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// Códigos de alerta de pre-envío. El operador los recibe tal cual en el
// reporte del lote; nunca se persisten.
const (
	CodeCountryNotSupported   = "country_not_supported"
	CodeCountryHalted         = "country_halted"
	CodeMissingCredentials    = "missing_credentials"
	CodeIncompleteCredentials = "incomplete_credentials"
	CodeInvalidInvoice        = "invalid_invoice"
	CodeInvalidReason         = "invalid_reason"
	CodeBuildFailed           = "build_failed"
	CodeAlreadyAccepted       = "already_accepted"
	CodeAlreadyInFlight       = "already_in_flight"
	CodeAlreadyCancelled      = "already_cancelled"
	CodeNoAcceptedDocument    = "no_accepted_document"
	CodeDuplicateAccessKey    = "duplicate_access_key"
	CodeOperationUnsupported  = "operation_unsupported"
	CodeUnknownStateCode      = "unknown_state_code"
)

// eligibility valida todo lo que puede comprobarse sin tocar la red: país
// soportado, credenciales completas y factura coherente. Devuelve el adaptador
// y el CredentialSet resueltos junto con las alertas acumuladas.
func (d *Dispatcher) eligibility(ctx context.Context, inv *entity.Invoice,
	lines []*entity.InvoiceLine) (*Adapter, *entity.CredentialSet, pkgedi.Alerts) {

	var alerts pkgedi.Alerts

	adapter, ok := d.registry.Lookup(inv.Country)
	if !ok {
		alerts = append(alerts, pkgedi.Blocking(CodeCountryNotSupported,
			fmt.Sprintf("país %q sin adaptador de facturación electrónica", inv.Country)))
		return nil, nil, alerts
	}

	creds, err := d.creds.Get(ctx, inv.CompanyID, inv.Country)
	if err != nil {
		alerts = append(alerts, pkgedi.Blocking(CodeMissingCredentials,
			fmt.Sprintf("error consultando credenciales: %v", err)))
		return adapter, nil, alerts
	}
	if creds == nil {
		alerts = append(alerts, pkgedi.Blocking(CodeMissingCredentials,
			fmt.Sprintf("la empresa no tiene credenciales configuradas para %s", inv.Country)))
		return adapter, nil, alerts
	}
	if missing := creds.MissingFields(adapter.Needs.Certificate, adapter.Needs.UserPass, adapter.Needs.Token); len(missing) > 0 {
		al := pkgedi.Blocking(CodeIncompleteCredentials,
			fmt.Sprintf("credenciales incompletas para %s: faltan %s", inv.Country, strings.Join(missing, ", ")))
		al.RecordRef = creds.ID
		alerts = append(alerts, al)
	}

	if err := domedi.ValidateInvoice(inv, lines); err != nil {
		al := pkgedi.Blocking(CodeInvalidInvoice, err.Error())
		al.RecordRef = inv.ID
		alerts = append(alerts, al)
	}

	return adapter, creds, alerts
}

// stateCatalogueAlert contrasta el código de estado del emisor con el catálogo
// paramétrico (edi_state_codes, poblado por cmd/seed_states). Un código no
// catalogado advierte pero no bloquea: los builders de país tienen su propio
// valor por defecto.
func (d *Dispatcher) stateCatalogueAlert(ctx context.Context, country string, company *entity.Company) pkgedi.Alerts {
	if d.states == nil || company == nil || company.StateCode == "" {
		return nil
	}
	name, err := d.states.Name(ctx, country, company.StateCode)
	if err != nil {
		d.log.Warn().Err(err).Str("country", country).Msg("catálogo de estados no disponible")
		return nil
	}
	if name != "" {
		return nil
	}
	al := pkgedi.Warning(CodeUnknownStateCode,
		fmt.Sprintf("código de estado %q no catalogado para %s", company.StateCode, country))
	al.RecordRef = company.ID
	return pkgedi.Alerts{al}
}

// ── Nombres canónicos de adjuntos ────────────────────────────────────────────

// Los adjuntos son direccionables por contenido: (access_key, nombre). Los
// nombres derivan del país en mayúsculas y la clave (BR-<clave>.xml), nunca
// del número interno de factura.

func xmlAttachmentName(country, accessKey string) string {
	return fmt.Sprintf("%s-%s.xml", strings.ToUpper(country), accessKey)
}

func pdfAttachmentName(country, accessKey string) string {
	return fmt.Sprintf("%s-%s.pdf", strings.ToUpper(country), accessKey)
}

func qrAttachmentName(country, accessKey string) string {
	return fmt.Sprintf("%s-%s.png", strings.ToUpper(country), accessKey)
}

func responseAttachmentName(country, accessKey string) string {
	return fmt.Sprintf("%s-%s-respuesta.xml", strings.ToUpper(country), accessKey)
}
