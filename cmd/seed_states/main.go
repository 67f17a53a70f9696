// seed_states genera el script SQL que puebla edi_state_codes, el catálogo de
// estados/departamentos por país (código UF brasileño, clave de entidad
// mexicana, ubigeo peruano), a partir del XML publicado por cada autoridad.
// La tabla la crea 001_edi_schema.sql; aquí solo van los datos.
//
// Uso: go run ./cmd/seed_states [ruta/Estados.xml]
// Por defecto busca Estados.xml en el directorio actual.
// Escribe: internal/infrastructure/postgres/migrations/002_seed_states.sql
package main

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type catalogo struct {
	Estados []estado `xml:"estado"`
}

type estado struct {
	Pais   string `xml:"pais,attr"`
	Cod    string `xml:"cod,attr"`
	Nombre string `xml:"nombre,attr"`
}

func main() {
	xmlPath := "Estados.xml"
	if len(os.Args) > 1 {
		xmlPath = os.Args[1]
	}
	f, err := os.Open(xmlPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir XML: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	// Los catálogos oficiales latinoamericanos suelen venir en ISO-8859-1.
	var cat catalogo
	dec := xml.NewDecoder(f)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		if strings.EqualFold(charset, "ISO-8859-1") || strings.EqualFold(charset, "ISO8859-1") {
			return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
		}
		return input, nil
	}
	if err := dec.Decode(&cat); err != nil {
		fmt.Fprintf(os.Stderr, "Decodificar XML: %v\n", err)
		os.Exit(1)
	}

	var rows []estado
	for _, e := range cat.Estados {
		if e.Pais == "" || e.Cod == "" || e.Nombre == "" {
			continue
		}
		rows = append(rows, estado{
			Pais:   strings.ToUpper(strings.TrimSpace(e.Pais)),
			Cod:    strings.TrimSpace(e.Cod),
			Nombre: strings.TrimSpace(e.Nombre),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "El catálogo no contiene estados")
		os.Exit(1)
	}
	// Orden estable: (país, código)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Pais != rows[j].Pais {
			return rows[i].Pais < rows[j].Pais
		}
		return rows[i].Cod < rows[j].Cod
	})

	moduleRoot := findModuleRoot()
	outPath := filepath.Join(moduleRoot, "internal", "infrastructure", "postgres", "migrations", "002_seed_states.sql")
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	out.WriteString("-- Estados/departamentos por país (catálogo oficial de cada autoridad)\n")
	out.WriteString("-- Generado desde Estados.xml; la tabla vive en 001_edi_schema.sql\n\n")
	out.WriteString("INSERT INTO edi_state_codes (country, code, name) VALUES\n")
	for i, e := range rows {
		sep := ","
		if i == len(rows)-1 {
			sep = ""
		}
		fmt.Fprintf(out, "  ('%s', '%s', '%s')%s\n", e.Pais, e.Cod, escapeSQL(e.Nombre), sep)
	}
	out.WriteString("ON CONFLICT (country, code) DO UPDATE SET name = EXCLUDED.name;\n")

	fmt.Printf("Generado %s: %d estados\n", outPath, len(rows))
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
