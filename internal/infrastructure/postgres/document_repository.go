package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
	"github.com/jhoicas/edi-gateway/pkg/edi"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

const documentColumns = `
	id, invoice_id, company_id, country, state, kind,
	COALESCE(access_key, ''), COALESCE(parent_access_key, ''), sequence,
	COALESCE(cancel_reason, ''), payload_sent, payload_received,
	COALESCE(ticket, ''), COALESCE(message, ''), attempt_count,
	created_at, sent_at, acknowledged_at, updated_at`

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

// Create inserta el documento. El índice parcial único sobre access_key en
// estados no terminales hace cumplir la exclusividad del documento vivo.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	query := `
		INSERT INTO edi_document (id, invoice_id, company_id, country, state, kind,
			access_key, parent_access_key, sequence, cancel_reason,
			payload_sent, payload_received, ticket, message, attempt_count,
			created_at, sent_at, acknowledged_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.InvoiceID, doc.CompanyID, doc.Country, string(doc.State), string(doc.Kind),
		nullIfEmpty(doc.AccessKey), nullIfEmpty(doc.ParentAccessKey), doc.Sequence,
		nullIfEmpty(doc.CancelReason), doc.PayloadSent, doc.PayloadReceived,
		nullIfEmpty(doc.Ticket), nullIfEmpty(doc.Message), doc.AttemptCount,
		doc.CreatedAt, doc.SentAt, doc.AcknowledgedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ya existe un documento vivo con esa clave de acceso: %w", err)
		}
		return fmt.Errorf("insert documento: %w", err)
	}
	return nil
}

// Update persiste el estado completo tras una transición.
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document) error {
	query := `
		UPDATE edi_document
		SET state            = $2,
		    access_key       = COALESCE($3, access_key),
		    payload_sent     = COALESCE($4, payload_sent),
		    payload_received = COALESCE($5, payload_received),
		    ticket           = COALESCE($6, ticket),
		    message          = $7,
		    attempt_count    = $8,
		    sent_at          = COALESCE($9, sent_at),
		    acknowledged_at  = COALESCE($10, acknowledged_at),
		    updated_at       = $11
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, string(doc.State),
		nullIfEmpty(doc.AccessKey), doc.PayloadSent, doc.PayloadReceived,
		nullIfEmpty(doc.Ticket), doc.Message, doc.AttemptCount,
		doc.SentAt, doc.AcknowledgedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update documento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documento %s no existe", doc.ID)
	}
	return nil
}

// GetByID obtiene el documento o nil si no existe.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM edi_document WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByAccessKey soporta la deduplicación por clave. Si hay varias filas con la
// misma clave (reintento tras terminal), gana la viva; si no, la más reciente.
func (r *DocumentRepo) GetByAccessKey(ctx context.Context, accessKey string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM edi_document WHERE access_key = $1
		ORDER BY (state IN ('rejected', 'cancelled', 'error')), created_at DESC
		LIMIT 1`
	return r.scanOne(r.q.QueryRow(ctx, query, accessKey))
}

// ListByInvoice devuelve el historial completo, viejo primero.
func (r *DocumentRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM edi_document WHERE invoice_id = $1 ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list documentos: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// CountByInvoiceAndKind numera las cartas de corrección por factura.
func (r *DocumentRepo) CountByInvoiceAndKind(ctx context.Context, invoiceID string, kind edi.Kind) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM edi_document WHERE invoice_id = $1 AND kind = $2`,
		invoiceID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documentos: %w", err)
	}
	return n, nil
}

// ListPending devuelve la cola de polling del país, más antiguos primero.
func (r *DocumentRepo) ListPending(ctx context.Context, country string, limit int) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM edi_document
		WHERE country = $1 AND state IN ('sent', 'cancel_requested')
		ORDER BY sent_at NULLS FIRST, created_at
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, country, limit)
	if err != nil {
		return nil, fmt.Errorf("list pendientes: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// LockByID relee la fila con FOR UPDATE. Solo tiene sentido dentro de una tx.
func (r *DocumentRepo) LockByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM edi_document WHERE id = $1 FOR UPDATE`
	doc, err := r.scanOne(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("documento %s no existe", id)
	}
	return doc, nil
}

func (r *DocumentRepo) scanOne(row pgx.Row) (*entity.Document, error) {
	var d entity.Document
	var state, kind string
	err := row.Scan(
		&d.ID, &d.InvoiceID, &d.CompanyID, &d.Country, &state, &kind,
		&d.AccessKey, &d.ParentAccessKey, &d.Sequence,
		&d.CancelReason, &d.PayloadSent, &d.PayloadReceived,
		&d.Ticket, &d.Message, &d.AttemptCount,
		&d.CreatedAt, &d.SentAt, &d.AcknowledgedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan documento: %w", err)
	}
	d.State = edi.State(state)
	d.Kind = edi.Kind(kind)
	return &d, nil
}

func (r *DocumentRepo) scanAll(rows pgx.Rows) ([]*entity.Document, error) {
	var list []*entity.Document
	for rows.Next() {
		var d entity.Document
		var state, kind string
		if err := rows.Scan(
			&d.ID, &d.InvoiceID, &d.CompanyID, &d.Country, &state, &kind,
			&d.AccessKey, &d.ParentAccessKey, &d.Sequence,
			&d.CancelReason, &d.PayloadSent, &d.PayloadReceived,
			&d.Ticket, &d.Message, &d.AttemptCount,
			&d.CreatedAt, &d.SentAt, &d.AcknowledgedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan documento: %w", err)
		}
		d.State = edi.State(state)
		d.Kind = edi.Kind(kind)
		list = append(list, &d)
	}
	return list, rows.Err()
}
