package edi

// Severity clasifica una alerta de pre-envío.
type Severity string

const (
	SeverityBlocking Severity = "blocking" // Aborta el envío de esa factura (no del lote)
	SeverityWarning  Severity = "warning"  // Se muestra al operador; el envío continúa
)

// Alert es el resultado transitorio de la validación previa al envío.
// Se calcula antes de enviar, se devuelve al operador y nunca se persiste.
type Alert struct {
	Code      string   `json:"code"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	RecordRef string   `json:"record_ref,omitempty"` // id del registro a corregir, si aplica
}

// Alerts agrupa las alertas de una factura.
type Alerts []Alert

// HasBlocking indica si alguna alerta impide el envío.
func (a Alerts) HasBlocking() bool {
	for _, al := range a {
		if al.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// Blocking devuelve solo las alertas bloqueantes.
func (a Alerts) Blocking() Alerts {
	var out Alerts
	for _, al := range a {
		if al.Severity == SeverityBlocking {
			out = append(out, al)
		}
	}
	return out
}

// Warnings devuelve solo las alertas informativas.
func (a Alerts) Warnings() Alerts {
	var out Alerts
	for _, al := range a {
		if al.Severity == SeverityWarning {
			out = append(out, al)
		}
	}
	return out
}

// Blocking construye una alerta bloqueante.
func Blocking(code, message string) Alert {
	return Alert{Code: code, Severity: SeverityBlocking, Message: message}
}

// Warning construye una alerta informativa.
func Warning(code, message string) Alert {
	return Alert{Code: code, Severity: SeverityWarning, Message: message}
}
