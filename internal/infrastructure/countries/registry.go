// Package countries contiene los adaptadores por jurisdicción: builders de
// sobre, decodificación de respuestas, consultas de estado y buzón entrante.
// Cada país es un conjunto de capacidades (variante etiquetada); lo que no
// aplica en una jurisdicción queda en nil y la orquestación lo trata como
// "no soportado".
package countries

import (
	"strings"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
)

// NewRegistry arma el registro con los seis países soportados.
func NewRegistry() appedi.Registry {
	return appedi.Registry{
		"BR": Brazil(),
		"MX": Mexico(),
		"UY": Uruguay(),
		"PE": Peru(),
		"KE": Kenya(),
		"IN": India(),
	}
}

// onlyDigits deja solo dígitos 0-9; los identificadores fiscales llegan con
// puntos, guiones y espacios según el país.
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// padLeft rellena con ceros a la izquierda hasta n caracteres, truncando por
// la izquierda si se pasa.
func padLeft(s string, n int) string {
	if len(s) >= n {
		return s[len(s)-n:]
	}
	return strings.Repeat("0", n-len(s)) + s
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
