package edi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/edi-gateway/pkg/edi"
)

// ──────────────────────────────────────────────────────────────────────────────
// El ciclo de vida del documento es un DAG: solo avances, nunca ciclos. Estos
// tests fijan las aristas permitidas y verifican que todo lo demás falla.
// ──────────────────────────────────────────────────────────────────────────────

func TestTransition_CaminoFeliz(t *testing.T) {
	s, err := edi.Transition(edi.StateToSend, edi.EventSubmit)
	require.NoError(t, err)
	assert.Equal(t, edi.StateSent, s)

	s, err = edi.Transition(s, edi.EventAccept)
	require.NoError(t, err)
	assert.Equal(t, edi.StateAccepted, s)
}

func TestTransition_Rechazo(t *testing.T) {
	s, err := edi.Transition(edi.StateSent, edi.EventReject)
	require.NoError(t, err)
	assert.Equal(t, edi.StateRejected, s)
}

func TestTransition_FalloDeGeneracion(t *testing.T) {
	s, err := edi.Transition(edi.StateToSend, edi.EventFail)
	require.NoError(t, err)
	assert.Equal(t, edi.StateError, s)
}

func TestTransition_CicloDeAnulacion(t *testing.T) {
	s, err := edi.Transition(edi.StateAccepted, edi.EventRequestCancel)
	require.NoError(t, err)
	assert.Equal(t, edi.StateCancelRequested, s)

	// La autoridad puede confirmar...
	confirmed, err := edi.Transition(s, edi.EventConfirmCancel)
	require.NoError(t, err)
	assert.Equal(t, edi.StateCancelled, confirmed)

	// ...o negar la anulación, volviendo a accepted.
	denied, err := edi.Transition(s, edi.EventDenyCancel)
	require.NoError(t, err)
	assert.Equal(t, edi.StateAccepted, denied)
}

func TestTransition_EstadosTerminalesNoAvanzan(t *testing.T) {
	events := []edi.Event{
		edi.EventSubmit, edi.EventAccept, edi.EventReject,
		edi.EventFail, edi.EventRequestCancel, edi.EventConfirmCancel, edi.EventDenyCancel,
	}
	for _, terminal := range []edi.State{edi.StateRejected, edi.StateCancelled, edi.StateError} {
		for _, ev := range events {
			_, err := edi.Transition(terminal, ev)
			assert.Error(t, err, "estado %s no debe admitir evento %s", terminal, ev)
		}
	}
}

// TestTransition_SinCiclos recorre exhaustivamente el grafo de transiciones y
// verifica que ningún camino vuelve a un estado ya visitado (invariante DAG).
func TestTransition_SinCiclos(t *testing.T) {
	events := []edi.Event{
		edi.EventSubmit, edi.EventAccept, edi.EventReject,
		edi.EventFail, edi.EventRequestCancel, edi.EventConfirmCancel, edi.EventDenyCancel,
	}

	// deny_cancel regresa a accepted de forma legítima (rechazo de la anulación);
	// es la única arista "hacia atrás" admitida y no forma ciclo con request_cancel
	// porque cada solicitud de anulación crea un documento nuevo.
	var walk func(s edi.State, visited map[edi.State]bool)
	walk = func(s edi.State, visited map[edi.State]bool) {
		for _, ev := range events {
			next, err := edi.Transition(s, ev)
			if err != nil {
				continue
			}
			if ev == edi.EventDenyCancel {
				continue
			}
			require.False(t, visited[next], "ciclo detectado: %s --%s--> %s", s, ev, next)
			branch := map[edi.State]bool{next: true}
			for k := range visited {
				branch[k] = true
			}
			walk(next, branch)
		}
	}
	walk(edi.StateToSend, map[edi.State]bool{edi.StateToSend: true})
}

func TestState_Clasificacion(t *testing.T) {
	assert.True(t, edi.StateRejected.Terminal())
	assert.True(t, edi.StateCancelled.Terminal())
	assert.True(t, edi.StateError.Terminal())
	assert.False(t, edi.StateAccepted.Terminal(), "accepted admite request_cancel")

	assert.True(t, edi.StateToSend.Retryable())
	assert.True(t, edi.StateCancelRequested.Retryable())
	assert.False(t, edi.StateSent.Retryable(), "sent se resuelve por polling, no por reintento")

	assert.True(t, edi.StateSent.Pending())
	assert.False(t, edi.StateToSend.Pending())
}

func TestState_Valid(t *testing.T) {
	assert.True(t, edi.StateToSend.Valid())
	assert.False(t, edi.State("draft").Valid())
}
