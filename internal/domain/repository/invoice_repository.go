package repository

import (
	"context"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// InvoiceRepository es la superficie estrecha sobre la factura del anfitrión:
// lectura completa, espejo de estado EDI y materialización de borradores
// entrantes. El CRUD de facturas pertenece al anfitrión.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetLines(ctx context.Context, invoiceID string) ([]*entity.InvoiceLine, error)
	// UpdateMirror espeja el estado consolidado del último documento: estado,
	// clave de acceso y texto de error (vacío lo limpia).
	UpdateMirror(ctx context.Context, invoiceID, status, accessKey, errMsg string) error
	// MarkCancelled marca la factura como anulada tras confirmarse la anulación.
	MarkCancelled(ctx context.Context, invoiceID string) error
	// CreateDraft materializa una factura borrador desde un documento entrante
	// (reconciliación KE/IN), con sus líneas ya mapeadas.
	CreateDraft(ctx context.Context, invoice *entity.Invoice, lines []*entity.InvoiceLine) error
}
