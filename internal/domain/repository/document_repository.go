package repository

import (
	"context"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/pkg/edi"
)

// DocumentRepository define el puerto de persistencia para Document (DIP).
// La implementación vive en infrastructure. Los documentos solo se insertan y
// cambian de estado; nunca se borran.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	Update(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	// GetByAccessKey soporta la deduplicación por clave de acceso (idempotencia).
	GetByAccessKey(ctx context.Context, accessKey string) (*entity.Document, error)
	// ListByInvoice devuelve los documentos de la factura ordenados por created_at.
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Document, error)
	// CountByInvoiceAndKind numera las cartas de corrección por factura.
	CountByInvoiceAndKind(ctx context.Context, invoiceID string, kind edi.Kind) (int, error)
	// ListPending devuelve la cola de polling: documentos en sent/cancel_requested
	// del país, más antiguos primero.
	ListPending(ctx context.Context, country string, limit int) ([]*entity.Document, error)
	// LockByID toma el bloqueo de fila del documento (FOR UPDATE) y devuelve el
	// estado releído. Solo tiene sentido dentro de una transacción.
	LockByID(ctx context.Context, id string) (*entity.Document, error)
}
