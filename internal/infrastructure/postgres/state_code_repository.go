package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/edi-gateway/internal/domain/repository"
)

var _ repository.StateCodeRepository = (*StateCodeRepo)(nil)

// StateCodeRepo implementación de StateCodeRepository sobre edi_state_codes,
// la tabla paramétrica que puebla cmd/seed_states.
type StateCodeRepo struct {
	q Querier
}

// NewStateCodeRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStateCodeRepository(q Querier) *StateCodeRepo {
	return &StateCodeRepo{q: q}
}

// Name devuelve el nombre del estado catalogado o "" si (país, código) no existe.
func (r *StateCodeRepo) Name(ctx context.Context, country, code string) (string, error) {
	var name string
	err := r.q.QueryRow(ctx,
		`SELECT name FROM edi_state_codes WHERE country = $1 AND code = $2`,
		country, code).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("consultar estado %s/%s: %w", country, code, err)
	}
	return name, nil
}
