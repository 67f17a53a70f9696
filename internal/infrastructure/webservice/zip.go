package webservice

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// CompressXMLToZip empaqueta el XML firmado en un ZIP en memoria con un único
// archivo interno. Varias autoridades (SUNAT entre ellas) exigen este formato
// para el envío.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", xmlFilename, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractSingleXML abre un ZIP de respuesta (el CDR de SUNAT llega así) y
// devuelve el contenido del primer archivo .xml encontrado.
func ExtractSingleXML(zipBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("zip: abrir respuesta: %w", err)
	}
	for _, f := range zr.File {
		if len(f.Name) < 4 || f.Name[len(f.Name)-4:] != ".xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("zip: abrir %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("zip: leer %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("zip: la respuesta no contiene ningún XML")
}
