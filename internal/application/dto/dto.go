// Package dto define los contratos JSON de la API HTTP.
package dto

import "time"

// ErrorResponse respuesta de error estándar de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendBatchRequest lote de facturas a enviar.
type SendBatchRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
}

// ReasonRequest cuerpo de corrección/anulación: la justificación (15–255).
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// CredentialRequest alta o reemplazo del CredentialSet de un país.
// CertData viaja en Base64; la API nunca lo devuelve de vuelta.
type CredentialRequest struct {
	Environment  string            `json:"environment"` // prod | test | demo
	Endpoints    map[string]string `json:"endpoints,omitempty"`
	TaxpayerID   string            `json:"taxpayer_id"`
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	Token        string            `json:"token,omitempty"`
	LEI          string            `json:"lei,omitempty"`
	CertData     string            `json:"cert_data,omitempty"` // Base64
	CertPassword string            `json:"cert_password,omitempty"`
}

// CredentialSummary vista sin secretos del CredentialSet.
type CredentialSummary struct {
	Country        string    `json:"country"`
	Environment    string    `json:"environment"`
	TaxpayerID     string    `json:"taxpayer_id"`
	HasCertificate bool      `json:"has_certificate"`
	HasUserPass    bool      `json:"has_userpass"`
	HasToken       bool      `json:"has_token"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DocumentView una fila del historial de documentos de la factura.
type DocumentView struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	State           string     `json:"state"`
	AccessKey       string     `json:"access_key,omitempty"`
	ParentAccessKey string     `json:"parent_access_key,omitempty"`
	Sequence        int        `json:"sequence,omitempty"`
	Ticket          string     `json:"ticket,omitempty"`
	Message         string     `json:"message,omitempty"`
	AttemptCount    int        `json:"attempt_count"`
	CreatedAt       time.Time  `json:"created_at"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
}

// InvoiceStatusResponse estado EDI consolidado de la factura más su historial.
type InvoiceStatusResponse struct {
	InvoiceID    string           `json:"invoice_id"`
	Country      string           `json:"country"`
	EDIStatus    string           `json:"edi_status,omitempty"`
	EDIAccessKey string           `json:"edi_access_key,omitempty"`
	EDIError     string           `json:"edi_error,omitempty"`
	Cancelled    bool             `json:"cancelled"`
	Documents    []DocumentView   `json:"documents"`
	Attachments  []AttachmentView `json:"attachments,omitempty"`
}

// AttachmentView metadato de un adjunto (los bytes se descargan aparte).
type AttachmentView struct {
	AccessKey string `json:"access_key"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	Size      int    `json:"size"`
}
