package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
)

var _ repository.AttachmentRepository = (*AttachmentRepo)(nil)

// AttachmentRepo implementación de AttachmentRepository (usable con pool o tx).
// Los adjuntos son direccionables por contenido: la clave es (access_key, name).
type AttachmentRepo struct {
	q Querier
}

// NewAttachmentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAttachmentRepository(q Querier) *AttachmentRepo {
	return &AttachmentRepo{q: q}
}

// Put inserta o reemplaza el adjunto. Reenviar el mismo documento sobreescribe
// los mismos nombres en lugar de duplicar filas.
func (r *AttachmentRepo) Put(ctx context.Context, att *entity.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	query := `
		INSERT INTO edi_document_attachment (id, invoice_id, access_key, name, mime_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (access_key, name) DO UPDATE
		SET invoice_id = EXCLUDED.invoice_id,
		    mime_type  = EXCLUDED.mime_type,
		    data       = EXCLUDED.data`
	_, err := r.q.Exec(ctx, query,
		att.ID, att.InvoiceID, att.AccessKey, att.Name, att.MimeType, att.Data, att.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert adjunto: %w", err)
	}
	return nil
}

// ListByAccessKey devuelve los adjuntos del documento, por nombre.
func (r *AttachmentRepo) ListByAccessKey(ctx context.Context, accessKey string) ([]*entity.Attachment, error) {
	query := `
		SELECT id, invoice_id, access_key, name, mime_type, data, created_at
		FROM edi_document_attachment WHERE access_key = $1 ORDER BY name`
	rows, err := r.q.Query(ctx, query, accessKey)
	if err != nil {
		return nil, fmt.Errorf("list adjuntos: %w", err)
	}
	defer rows.Close()
	return scanAttachments(rows)
}

// ListByInvoice devuelve todos los adjuntos de la factura (todas las claves).
func (r *AttachmentRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Attachment, error) {
	query := `
		SELECT id, invoice_id, access_key, name, mime_type, data, created_at
		FROM edi_document_attachment WHERE invoice_id = $1 ORDER BY access_key, name`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list adjuntos de factura: %w", err)
	}
	defer rows.Close()
	return scanAttachments(rows)
}

// Get obtiene un adjunto puntual o nil si no existe.
func (r *AttachmentRepo) Get(ctx context.Context, accessKey, name string) (*entity.Attachment, error) {
	query := `
		SELECT id, invoice_id, access_key, name, mime_type, data, created_at
		FROM edi_document_attachment WHERE access_key = $1 AND name = $2`
	var a entity.Attachment
	err := r.q.QueryRow(ctx, query, accessKey, name).Scan(
		&a.ID, &a.InvoiceID, &a.AccessKey, &a.Name, &a.MimeType, &a.Data, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get adjunto: %w", err)
	}
	return &a, nil
}

func scanAttachments(rows pgx.Rows) ([]*entity.Attachment, error) {
	var list []*entity.Attachment
	for rows.Next() {
		var a entity.Attachment
		if err := rows.Scan(&a.ID, &a.InvoiceID, &a.AccessKey, &a.Name, &a.MimeType, &a.Data, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjunto: %w", err)
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
