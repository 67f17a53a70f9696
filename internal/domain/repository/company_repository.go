package repository

import (
	"context"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// CompanyRepository define el puerto de lectura de empresas emisoras.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	// ListWithCredentials devuelve las empresas que tienen CredentialSet para
	// algún país: el universo del reconciliador periódico.
	ListWithCredentials(ctx context.Context) ([]*entity.Company, error)
}
