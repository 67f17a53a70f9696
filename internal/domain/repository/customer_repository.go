package repository

import (
	"context"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// CustomerRepository define el puerto de lectura de adquirientes.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
	GetByCompanyAndTaxID(ctx context.Context, companyID, taxID string) (*entity.Customer, error)
	// Create materializa adquirientes descubiertos por la reconciliación entrante.
	Create(ctx context.Context, customer *entity.Customer) error
}
