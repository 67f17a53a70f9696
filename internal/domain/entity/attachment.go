package entity

import "time"

// Attachment es un artefacto persistido de un documento aceptado (XML firmado,
// representación PDF, código QR, acuse). Direccionable por contenido: la clave
// primaria es (access_key, name). Los nombres placeholder se calculan antes del
// envío; los bytes reales se materializan al pasar a accepted.
type Attachment struct {
	ID        string
	InvoiceID string
	AccessKey string
	Name      string // <país>-<access_key>.<ext>
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}
