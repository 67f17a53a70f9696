package entity

import (
	"time"

	"github.com/jhoicas/edi-gateway/pkg/edi"
)

// Document representa el ciclo de vida de un sobre electrónico: una fila por
// (factura, intento). La factura es dueña exclusiva de sus documentos y estos
// se ordenan cronológicamente por CreatedAt. Nunca se borran.
type Document struct {
	ID        string
	InvoiceID string
	CompanyID string
	Country   string // código de dos letras; selecciona builder, esquema y cliente

	State edi.State
	Kind  edi.Kind

	// AccessKey es el identificador único externo (clave NFe de 44 caracteres,
	// UUID mexicano, serie+número uruguayo, número de factura OSCU).
	AccessKey string

	// ParentAccessKey referencia el documento autoritativo previo para
	// correcciones y anulaciones.
	ParentAccessKey string

	// Sequence numera las cartas de corrección por factura, empezando en 1.
	// Cero para emisiones y anulaciones.
	Sequence int

	// CancelReason es la justificación de la anulación (acotada 15–255).
	CancelReason string

	// Payloads opacos retenidos para auditoría.
	PayloadSent     []byte
	PayloadReceived []byte

	// Ticket es el recibo devuelto por un WS asíncrono, usado en la consulta.
	Ticket string

	Message      string // último texto de error/éxito, mostrado tal cual
	AttemptCount int

	CreatedAt      time.Time
	SentAt         *time.Time
	AcknowledgedAt *time.Time
	UpdatedAt      time.Time
}

// Apply ejecuta la transición pura y actualiza los timestamps que exige la
// autoridad. El llamador persiste documento y respuesta en la misma transacción.
func (d *Document) Apply(ev edi.Event, now time.Time) error {
	next, err := edi.Transition(d.State, ev)
	if err != nil {
		return err
	}
	d.State = next
	d.UpdatedAt = now
	switch ev {
	case edi.EventSubmit:
		t := now
		d.SentAt = &t
		d.AttemptCount++
	case edi.EventAccept, edi.EventReject, edi.EventConfirmCancel, edi.EventDenyCancel:
		t := now
		d.AcknowledgedAt = &t
	}
	return nil
}
