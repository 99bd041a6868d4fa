package saml

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// KeyPair is an RSA signing key and its certificate. It satisfies
// dsig.X509KeyStore.
type KeyPair struct {
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
}

func (k *KeyPair) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	if k == nil || k.Key == nil || k.Cert == nil {
		return nil, nil, errors.New("saml: no signing key")
	}
	return k.Key, k.Cert.Raw, nil
}

// LoadKeyPair parses a PEM certificate and its PEM private key.
func LoadKeyPair(certPEM, keyPEM []byte) (*KeyPair, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("saml: load key pair: %w", err)
	}
	key, ok := pair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("saml: signing key must be RSA")
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("saml: parse certificate: %w", err)
	}
	return &KeyPair{Key: key, Cert: cert}, nil
}

// GenerateKeyPair creates a self-signed RSA key pair valid for a year from
// now. Used when no SP key is configured and in tests.
func GenerateKeyPair(commonName string, now time.Time) (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("saml: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("saml: serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("saml: create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Key: key, Cert: cert}, nil
}

// CertificatePEM encodes the certificate for storing in an IdP config.
func (k *KeyPair) CertificatePEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: k.Cert.Raw}))
}

// parseCertificate accepts PEM or the bare base64 found in IdP metadata.
func parseCertificate(s string) (*x509.Certificate, error) {
	s = strings.TrimSpace(s)
	if block, _ := pem.Decode([]byte(s)); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("saml: certificate is neither PEM nor base64: %w", err)
	}
	return x509.ParseCertificate(der)
}
