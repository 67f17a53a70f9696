package edi

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
)

// Límites de la justificación de anulación y de la carta de corrección.
// BR exige 15–255 caracteres; el resto de jurisdicciones cabe en el mismo rango.
const (
	MinReasonLength = 15
	MaxReasonLength = 255
)

// ErrInvalidInvoice agrupa errores de validación local de la factura.
var ErrInvalidInvoice = errors.New("factura inválida para emisión electrónica")

// ErrInvalidReason indica una justificación fuera de los límites permitidos.
var ErrInvalidReason = errors.New("justificación fuera de los límites permitidos")

// ValidateReason valida la longitud de la justificación de anulación/corrección.
// Cuenta caracteres, no bytes: las justificaciones llegan en español/portugués.
func ValidateReason(reason string) error {
	n := utf8.RuneCountInString(reason)
	if n < MinReasonLength {
		return fmt.Errorf("%w: mínimo %d caracteres, se recibieron %d", ErrInvalidReason, MinReasonLength, n)
	}
	if n > MaxReasonLength {
		return fmt.Errorf("%w: máximo %d caracteres, se recibieron %d", ErrInvalidReason, MaxReasonLength, n)
	}
	return nil
}

// ValidateInvoice comprueba que la factura puede convertirse en sobre: está
// contabilizada, tiene líneas y los totales cuadran con la suma de ítems.
// Una factura vacía debe fallar aquí y nunca llegar a la red.
func ValidateInvoice(invoice *entity.Invoice, lines []*entity.InvoiceLine) error {
	if invoice == nil {
		return fmt.Errorf("%w: factura nula", ErrInvalidInvoice)
	}
	var errs []error

	if !invoice.Posted {
		errs = append(errs, fmt.Errorf("%w: la factura no está contabilizada", ErrInvalidInvoice))
	}
	if len(lines) == 0 {
		errs = append(errs, fmt.Errorf("%w: la factura no tiene líneas", ErrInvalidInvoice))
	} else {
		var sumNet, sumTax decimal.Decimal
		for _, l := range lines {
			sumNet = sumNet.Add(l.Subtotal)
			sumTax = sumTax.Add(l.TaxAmount())
		}
		if !invoice.NetTotal.Round(2).Equal(sumNet.Round(2)) {
			errs = append(errs, fmt.Errorf("net total (%s) no coincide con la suma de subtotales (%s)",
				invoice.NetTotal.String(), sumNet.Round(2).String()))
		}
		if !invoice.TaxTotal.Round(2).Equal(sumTax.Round(2)) {
			errs = append(errs, fmt.Errorf("tax total (%s) no coincide con la suma de impuestos por línea (%s)",
				invoice.TaxTotal.String(), sumTax.Round(2).String()))
		}
		expectedGrand := sumNet.Add(sumTax).Round(2)
		if !invoice.GrandTotal.Round(2).Equal(expectedGrand) {
			errs = append(errs, fmt.Errorf("grand total (%s) no coincide con net + tax (%s)",
				invoice.GrandTotal.String(), expectedGrand.String()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidInvoice}, errs...)...)
	}
	return nil
}
