// Package qr codifica el texto de verificación del país como imagen PNG,
// adjuntada junto al XML firmado y la representación PDF.
package qr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
)

var _ appedi.QRGenerator = (*Generator)(nil)

// Generator implementa edi.QRGenerator sobre boombuler/barcode.
type Generator struct{}

// New construye el generador.
func New() *Generator { return &Generator{} }

// Generate codifica payload como QR de size x size píxeles y lo devuelve en PNG.
func (g *Generator) Generate(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr: payload vacío")
	}
	if size <= 0 {
		size = 256
	}
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr: codificar: %w", err)
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("qr: escalar: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("qr: serializar PNG: %w", err)
	}
	return buf.Bytes(), nil
}
