// Package edi: puerto para la firma digital de sobres XML (XMLDSig/XAdES).

package edi

import "crypto/tls"

// Signer firma un XML y devuelve el documento con la firma inyectada donde el
// esquema del país lo exige. La canonicalización debe ser estable:
// canonicalize(canonicalize(x)) == canonicalize(x).
type Signer interface {
	// Sign toma el XML sin firma y el certificado con llave privada, y retorna
	// el XML con el nodo ds:Signature embebido.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
