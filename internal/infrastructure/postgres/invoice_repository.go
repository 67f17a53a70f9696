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

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
// Es la superficie estrecha sobre la tabla del anfitrión: lectura, espejo EDI
// y materialización de borradores entrantes.
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// GetByID obtiene la factura o nil si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `
		SELECT id, company_id, customer_id, country, series, number, issue_date, currency,
		       net_total, tax_total, grand_total, posted, cancelled,
		       COALESCE(edi_status, ''), COALESCE(edi_access_key, ''), COALESCE(edi_error, ''),
		       created_at, updated_at
		FROM invoices WHERE id = $1`
	var inv entity.Invoice
	err := r.q.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.Country, &inv.Series, &inv.Number,
		&inv.IssueDate, &inv.Currency,
		&inv.NetTotal, &inv.TaxTotal, &inv.GrandTotal, &inv.Posted, &inv.Cancelled,
		&inv.EDIStatus, &inv.EDIAccessKey, &inv.EDIError,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get factura: %w", err)
	}
	return &inv, nil
}

// GetLines devuelve las líneas de la factura en orden estable.
func (r *InvoiceRepo) GetLines(ctx context.Context, invoiceID string) ([]*entity.InvoiceLine, error) {
	query := `
		SELECT id, invoice_id, description, COALESCE(product_code, ''), COALESCE(unit_code, ''),
		       quantity, unit_price, COALESCE(tax_code, ''), tax_rate, subtotal
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list líneas: %w", err)
	}
	defer rows.Close()

	var list []*entity.InvoiceLine
	for rows.Next() {
		var l entity.InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.ProductCode, &l.UnitCode,
			&l.Quantity, &l.UnitPrice, &l.TaxCode, &l.TaxRate, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("scan línea: %w", err)
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

// UpdateMirror espeja el estado consolidado del último documento sobre la
// factura del anfitrión. errMsg vacío limpia el error anterior.
func (r *InvoiceRepo) UpdateMirror(ctx context.Context, invoiceID, status, accessKey, errMsg string) error {
	query := `
		UPDATE invoices
		SET edi_status     = $2,
		    edi_access_key = COALESCE($3, edi_access_key),
		    edi_error      = $4,
		    updated_at     = NOW()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, invoiceID, status, nullIfEmpty(accessKey), errMsg)
	if err != nil {
		return fmt.Errorf("update espejo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("factura %s no existe", invoiceID)
	}
	return nil
}

// MarkCancelled marca la factura como anulada tras confirmarse la anulación.
func (r *InvoiceRepo) MarkCancelled(ctx context.Context, invoiceID string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE invoices SET cancelled = TRUE, updated_at = NOW() WHERE id = $1`,
		invoiceID)
	if err != nil {
		return fmt.Errorf("marcar anulada: %w", err)
	}
	return nil
}

// CreateDraft materializa una factura borrador descubierta por la
// reconciliación entrante, con sus líneas en la misma llamada.
func (r *InvoiceRepo) CreateDraft(ctx context.Context, invoice *entity.Invoice, lines []*entity.InvoiceLine) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoices (id, company_id, customer_id, country, series, number, issue_date,
			currency, net_total, tax_total, grand_total, posted, cancelled,
			edi_status, edi_access_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.q.Exec(ctx, query,
		invoice.ID, invoice.CompanyID, invoice.CustomerID, invoice.Country,
		invoice.Series, invoice.Number, invoice.IssueDate,
		invoice.Currency, invoice.NetTotal, invoice.TaxTotal, invoice.GrandTotal,
		invoice.Posted, invoice.Cancelled,
		nullIfEmpty(invoice.EDIStatus), nullIfEmpty(invoice.EDIAccessKey),
		invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("la factura borrador ya existe: %w", err)
		}
		return fmt.Errorf("insert borrador: %w", err)
	}

	for _, l := range lines {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.InvoiceID = invoice.ID
		_, err := r.q.Exec(ctx, `
			INSERT INTO invoice_lines (id, invoice_id, description, product_code, unit_code,
				quantity, unit_price, tax_code, tax_rate, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			l.ID, l.InvoiceID, l.Description, nullIfEmpty(l.ProductCode), nullIfEmpty(l.UnitCode),
			l.Quantity, l.UnitPrice, nullIfEmpty(l.TaxCode), l.TaxRate, l.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert línea del borrador: %w", err)
		}
	}
	return nil
}
