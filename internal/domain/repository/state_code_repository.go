package repository

import "context"

// StateCodeRepository define el puerto del catálogo de estados/departamentos
// por país (código IBGE brasileño, clave de entidad mexicana, ubigeo peruano).
// La tabla se pobla con el generador de seeds y se consulta antes de emitir.
type StateCodeRepository interface {
	// Name devuelve el nombre oficial del estado o "" si el código no está en
	// el catálogo (la ausencia se reporta como alerta, no como error).
	Name(ctx context.Context, country, code string) (string, error)
}
