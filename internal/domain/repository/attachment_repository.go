package repository

import (
	"context"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// AttachmentRepository define el puerto de persistencia de adjuntos,
// direccionables por contenido: la clave es (access_key, name).
type AttachmentRepository interface {
	// Put inserta o reemplaza el adjunto (los placeholders se sustituyen por
	// los bytes reales al aceptarse el documento).
	Put(ctx context.Context, att *entity.Attachment) error
	ListByAccessKey(ctx context.Context, accessKey string) ([]*entity.Attachment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Attachment, error)
	Get(ctx context.Context, accessKey, name string) (*entity.Attachment, error)
}
