// Package edi contiene las reglas de dominio del ciclo de vida de documentos
// electrónicos: selección del documento vigente, desempates y validaciones
// previas al envío.
package edi

import (
	"sort"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// Latest devuelve el documento a mostrar al operador: el de mayor CreatedAt.
// Los documentos llegan en cualquier orden; no muta el slice recibido.
func Latest(docs []*entity.Document) *entity.Document {
	if len(docs) == 0 {
		return nil
	}
	sorted := make([]*entity.Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted[len(sorted)-1]
}

// Authoritative devuelve la emisión aceptada de la factura, la única que
// cuenta para sistemas aguas abajo. Las anulaciones y correcciones cuelgan de
// ella pero nunca la sustituyen. Por invariante hay a lo sumo una.
func Authoritative(docs []*entity.Document) *entity.Document {
	for _, d := range docs {
		if isAmendment(d) {
			continue
		}
		if d.State == pkgedi.StateAccepted || d.State == pkgedi.StateCancelRequested {
			return d
		}
	}
	return nil
}

func isAmendment(d *entity.Document) bool {
	return d.Kind == pkgedi.KindCancel || d.Kind == pkgedi.KindCorrection
}

// OpenDocument devuelve el documento en estado no terminal, si existe.
// Una factura contabilizada admite a lo sumo uno.
func OpenDocument(docs []*entity.Document) *entity.Document {
	for _, d := range docs {
		if !d.State.Terminal() && d.State != pkgedi.StateAccepted {
			return d
		}
	}
	return nil
}

// MirrorStatus calcula el estado consolidado que se espeja en la factura del
// anfitrión: el de la emisión más reciente. Las anulaciones y correcciones no
// participan; su efecto ya se refleja en el estado del padre.
func MirrorStatus(docs []*entity.Document) string {
	var issues []*entity.Document
	for _, d := range docs {
		if !isAmendment(d) {
			issues = append(issues, d)
		}
	}
	latest := Latest(issues)
	if latest == nil {
		latest = Latest(docs)
	}
	if latest == nil {
		return ""
	}
	return string(latest.State)
}
