// Package edi contiene los tipos compartidos del ciclo de vida de documentos
// electrónicos: estados, eventos, clases de error y alertas. Sin dependencias
// de infraestructura para que dominio, aplicación y adaptadores de país puedan
// importarlo libremente.
package edi

import "fmt"

// State es el estado de un documento electrónico frente a la autoridad fiscal.
type State string

const (
	StateToSend          State = "to_send"          // Creado, pendiente de construir/enviar
	StateSent            State = "sent"             // Entregado al WS, decisión de la autoridad pendiente
	StateAccepted        State = "accepted"         // Aceptado por la autoridad (autoritativo)
	StateRejected        State = "rejected"         // Rechazado por la autoridad (permanente)
	StateCancelRequested State = "cancel_requested" // Anulación solicitada, respuesta pendiente
	StateCancelled       State = "cancelled"        // Anulado por la autoridad
	StateError           State = "error"            // Falló la generación o se agotaron los reintentos
)

// Kind clasifica el sobre que representa el documento.
type Kind string

const (
	KindIssue      Kind = "issue"      // Emisión original
	KindCorrection Kind = "correction" // Carta de corrección / nota de ajuste no financiero
	KindCancel     Kind = "cancel"     // Solicitud de anulación
)

// Event es el suceso que mueve un documento de un estado a otro.
type Event string

const (
	EventSubmit        Event = "submit"         // El sobre llegó al WS (o quedó en duda por timeout)
	EventAccept        Event = "accept"         // La autoridad aceptó el documento
	EventReject        Event = "reject"         // La autoridad rechazó el documento
	EventFail          Event = "fail"           // Builder falló o se agotaron los reintentos de transporte
	EventRequestCancel Event = "request_cancel" // Se emitió un sobre de anulación contra este documento
	EventConfirmCancel Event = "confirm_cancel" // La autoridad confirmó la anulación
	EventDenyCancel    Event = "deny_cancel"    // La autoridad rechazó la anulación; sigue aceptado
)

// transitions define el DAG permitido. Solo avances; nunca ciclos.
var transitions = map[State]map[Event]State{
	StateToSend: {
		EventSubmit: StateSent,
		EventFail:   StateError,
	},
	StateSent: {
		EventAccept: StateAccepted,
		EventReject: StateRejected,
	},
	StateAccepted: {
		EventRequestCancel: StateCancelRequested,
	},
	StateCancelRequested: {
		EventConfirmCancel: StateCancelled,
		EventDenyCancel:    StateAccepted,
	},
}

// Transition aplica el evento sobre el estado y devuelve el estado resultante.
// Es una función pura: el llamador persiste estado y respuesta juntos.
func Transition(s State, e Event) (State, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("edi: transición inválida %s --%s-->", s, e)
}

// Terminal indica que el documento no volverá a moverse por sí solo.
// accepted no es terminal: admite request_cancel.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateCancelled || s == StateError
}

// Retryable indica los únicos estados desde los que se permite reintentar un envío.
func (s State) Retryable() bool {
	return s == StateToSend || s == StateCancelRequested
}

// Pending indica que el documento espera una decisión de la autoridad
// (cola de trabajo del reconciliador).
func (s State) Pending() bool {
	return s == StateSent || s == StateCancelRequested
}

// Valid verifica que el string corresponde a un estado conocido.
func (s State) Valid() bool {
	switch s {
	case StateToSend, StateSent, StateAccepted, StateRejected,
		StateCancelRequested, StateCancelled, StateError:
		return true
	}
	return false
}
