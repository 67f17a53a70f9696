package edi

import (
	"errors"
	"fmt"
)

// ErrorKind clasifica los fallos del pipeline de envío. La clase decide la
// política: reintento, parada del lote por país o marca permanente.
type ErrorKind string

const (
	ErrKindConfiguration  ErrorKind = "configuration_error"  // Credencial o endpoint faltante/malformado
	ErrKindValidation     ErrorKind = "validation_error"     // Falló la validación local, nunca llegó a la red
	ErrKindTransport      ErrorKind = "transport_error"      // Fallo transitorio de red; se reintenta
	ErrKindAuthentication ErrorKind = "authentication_error" // El PAC rechazó las credenciales; detiene el país
	ErrKindBusiness       ErrorKind = "business_error"       // La autoridad rechazó el documento; permanente
	ErrKindTimeout        ErrorKind = "timeout"              // Presupuesto agotado; el documento queda en sent
)

// Error es el error tipado del pipeline. Code transporta el código del
// PAC/autoridad cuando existe (ej: AUTH4033, cStat 204).
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError construye un error tipado.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError envuelve una causa conservando la clase.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extrae la clase de un error; errores no tipados cuentan como transporte.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindTransport
}
