// Carga de certificados desde material .p12 (PKCS#12) o PEM.

package signer

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// LoadCertificate decodifica el certificado opaco del almacén de credenciales.
// El formato habitual es .p12/.pfx; también acepta PEM combinado (certificado
// más llave en el mismo blob). El password puede ser vacío.
func LoadCertificate(data []byte, password string) (tls.Certificate, error) {
	if len(data) == 0 {
		return tls.Certificate{}, fmt.Errorf("certificado vacío")
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		if pair, pemErr := tls.X509KeyPair(data, data); pemErr == nil {
			if pair.Leaf == nil && len(pair.Certificate) > 0 {
				pair.Leaf, _ = x509.ParseCertificate(pair.Certificate[0])
			}
			return pair, nil
		}
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	// pkcs12.Decode devuelve un solo certificado; para firmar y para mTLS
	// basta la hoja.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// CertDigestAndIssuerSerial devuelve el digest SHA-256 del certificado (Base64),
// el emisor y el serial en hexadecimal para el bloque SigningCertificate.
func CertDigestAndIssuerSerial(cert *x509.Certificate) (digestB64 string, issuerName string, serialHex string) {
	h := sha256.Sum256(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(h[:])
	issuerName = cert.Issuer.String()
	serialHex = cert.SerialNumber.Text(16)
	return digestB64, issuerName, serialHex
}
