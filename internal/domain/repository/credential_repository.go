package repository

import (
	"context"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// CredentialRepository define el puerto del almacén de credenciales por
// (empresa, país). Es la única tabla sensible; el ciclo de vida de escritura
// pertenece al flujo de configuración del anfitrión.
type CredentialRepository interface {
	// Get devuelve el CredentialSet o nil si la empresa no tiene configuración
	// para ese país (la ausencia se reporta como alerta, no como error).
	Get(ctx context.Context, companyID, country string) (*entity.CredentialSet, error)
	Upsert(ctx context.Context, creds *entity.CredentialSet) error
	ListByCompany(ctx context.Context, companyID string) ([]*entity.CredentialSet, error)
	Delete(ctx context.Context, companyID, country string) error
}
