package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

const companyColumns = `
	id, name, COALESCE(tax_id, ''), COALESCE(country, ''), COALESCE(state_code, ''),
	COALESCE(address, ''), COALESCE(email, ''), COALESCE(time_zone, ''),
	created_at, updated_at`

// CompanyRepo implementación de CompanyRepository (usable con pool o tx).
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

// GetByID obtiene la empresa o nil si no existe.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return scanCompany(r.q.QueryRow(ctx, query, id))
}

// ListWithCredentials devuelve las empresas con al menos un CredentialSet:
// el universo del reconciliador periódico.
func (r *CompanyRepo) ListWithCredentials(ctx context.Context) ([]*entity.Company, error) {
	query := `SELECT ` + companyColumns + `
		FROM companies c
		WHERE EXISTS (SELECT 1 FROM edi_credentials cr WHERE cr.company_id = c.id)
		ORDER BY c.name`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list empresas con credenciales: %w", err)
	}
	defer rows.Close()

	var list []*entity.Company
	for rows.Next() {
		co, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, co)
	}
	return list, rows.Err()
}

func scanCompany(row pgx.Row) (*entity.Company, error) {
	var c entity.Company
	err := row.Scan(
		&c.ID, &c.Name, &c.TaxID, &c.Country, &c.StateCode,
		&c.Address, &c.Email, &c.TimeZone,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan empresa: %w", err)
	}
	return &c, nil
}
