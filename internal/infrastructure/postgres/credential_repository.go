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

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo implementación de CredentialRepository (usable con pool o tx).
// Los endpoints por operación se guardan como JSONB; el certificado como bytea
// opaco junto con su contraseña.
type CredentialRepo struct {
	q Querier
}

// NewCredentialRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCredentialRepository(q Querier) *CredentialRepo {
	return &CredentialRepo{q: q}
}

// Get devuelve el CredentialSet de (empresa, país) o nil si no existe.
func (r *CredentialRepo) Get(ctx context.Context, companyID, country string) (*entity.CredentialSet, error) {
	query := `
		SELECT id, company_id, country, environment, endpoints,
		       COALESCE(taxpayer_id, ''), COALESCE(username, ''), COALESCE(password, ''),
		       COALESCE(token, ''), COALESCE(lei, ''), cert_data, COALESCE(cert_password, ''),
		       created_at, updated_at
		FROM edi_credentials WHERE company_id = $1 AND country = $2`
	return scanCredentials(r.q.QueryRow(ctx, query, companyID, country))
}

// Upsert inserta o reemplaza la configuración de (empresa, país).
func (r *CredentialRepo) Upsert(ctx context.Context, creds *entity.CredentialSet) error {
	if creds.ID == "" {
		creds.ID = uuid.New().String()
	}
	query := `
		INSERT INTO edi_credentials (id, company_id, country, environment, endpoints,
			taxpayer_id, username, password, token, lei, cert_data, cert_password,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (company_id, country) DO UPDATE
		SET environment   = EXCLUDED.environment,
		    endpoints     = EXCLUDED.endpoints,
		    taxpayer_id   = EXCLUDED.taxpayer_id,
		    username      = EXCLUDED.username,
		    password      = EXCLUDED.password,
		    token         = EXCLUDED.token,
		    lei           = EXCLUDED.lei,
		    cert_data     = EXCLUDED.cert_data,
		    cert_password = EXCLUDED.cert_password,
		    updated_at    = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		creds.ID, creds.CompanyID, creds.Country, creds.Environment, creds.Endpoints,
		nullIfEmpty(creds.TaxpayerID), nullIfEmpty(creds.Username), nullIfEmpty(creds.Password),
		nullIfEmpty(creds.Token), nullIfEmpty(creds.LEI), creds.CertData, nullIfEmpty(creds.CertPassword),
		creds.CreatedAt, creds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credenciales: %w", err)
	}
	return nil
}

// ListByCompany devuelve todos los CredentialSet de la empresa, por país.
func (r *CredentialRepo) ListByCompany(ctx context.Context, companyID string) ([]*entity.CredentialSet, error) {
	query := `
		SELECT id, company_id, country, environment, endpoints,
		       COALESCE(taxpayer_id, ''), COALESCE(username, ''), COALESCE(password, ''),
		       COALESCE(token, ''), COALESCE(lei, ''), cert_data, COALESCE(cert_password, ''),
		       created_at, updated_at
		FROM edi_credentials WHERE company_id = $1 ORDER BY country`
	rows, err := r.q.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list credenciales: %w", err)
	}
	defer rows.Close()

	var list []*entity.CredentialSet
	for rows.Next() {
		creds, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, creds)
	}
	return list, rows.Err()
}

// Delete elimina la configuración de (empresa, país).
func (r *CredentialRepo) Delete(ctx context.Context, companyID, country string) error {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM edi_credentials WHERE company_id = $1 AND country = $2`,
		companyID, country)
	if err != nil {
		return fmt.Errorf("delete credenciales: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no hay credenciales de %s para la empresa %s", country, companyID)
	}
	return nil
}

func scanCredentials(row pgx.Row) (*entity.CredentialSet, error) {
	var c entity.CredentialSet
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Country, &c.Environment, &c.Endpoints,
		&c.TaxpayerID, &c.Username, &c.Password,
		&c.Token, &c.LEI, &c.CertData, &c.CertPassword,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan credenciales: %w", err)
	}
	return &c, nil
}
