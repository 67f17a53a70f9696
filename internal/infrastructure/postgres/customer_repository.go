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

var _ repository.CustomerRepository = (*CustomerRepo)(nil)

const customerColumns = `
	id, company_id, name, COALESCE(tax_id, ''), COALESCE(country, ''),
	COALESCE(state_code, ''), COALESCE(address, ''), COALESCE(email, ''),
	created_at, updated_at`

// CustomerRepo implementación de CustomerRepository (usable con pool o tx).
type CustomerRepo struct {
	q Querier
}

// NewCustomerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCustomerRepository(q Querier) *CustomerRepo {
	return &CustomerRepo{q: q}
}

// GetByID obtiene el adquiriente o nil si no existe.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return scanCustomer(r.q.QueryRow(ctx, query, id))
}

// GetByCompanyAndTaxID busca el adquiriente por identificación fiscal dentro
// de la empresa (la reconciliación entrante deduplica por aquí).
func (r *CustomerRepo) GetByCompanyAndTaxID(ctx context.Context, companyID, taxID string) (*entity.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE company_id = $1 AND tax_id = $2`
	return scanCustomer(r.q.QueryRow(ctx, query, companyID, taxID))
}

// Create materializa un adquiriente descubierto en el buzón entrante.
func (r *CustomerRepo) Create(ctx context.Context, customer *entity.Customer) error {
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	query := `
		INSERT INTO customers (id, company_id, name, tax_id, country, state_code, address, email,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		customer.ID, customer.CompanyID, customer.Name,
		nullIfEmpty(customer.TaxID), nullIfEmpty(customer.Country),
		nullIfEmpty(customer.StateCode), nullIfEmpty(customer.Address), nullIfEmpty(customer.Email),
		customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("el adquiriente ya existe: %w", err)
		}
		return fmt.Errorf("insert adquiriente: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*entity.Customer, error) {
	var c entity.Customer
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.TaxID, &c.Country,
		&c.StateCode, &c.Address, &c.Email,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan adquiriente: %w", err)
	}
	return &c, nil
}
