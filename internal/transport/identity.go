// Package transport provides the authenticated framed stream between
// peers.
package transport

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// ErrConfig reports unreadable or malformed identity material. Fatal at
// startup.
var ErrConfig = errors.New("transport: bad identity configuration")

// Fingerprint is a SHA-256 digest of a leaf certificate.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint decodes a hex SHA-256 pin.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("%w: pin is not hex: %v", ErrConfig, err)
	}
	if len(raw) != sha256.Size {
		return f, fmt.Errorf("%w: pin is %d bytes, want %d", ErrConfig, len(raw), sha256.Size)
	}
	copy(f[:], raw)
	return f, nil
}

// LeafFingerprint digests a certificate for pinning.
func LeafFingerprint(der []byte) Fingerprint {
	return sha256.Sum256(der)
}

// LoadIdentity reads a PKCS#12 bundle into a TLS certificate usable as
// the local long-term identity.
func LoadIdentity(path, password string) (tls.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	key, cert, err := pkcs12.Decode(raw, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: decode %s: %v", ErrConfig, path, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// verifyPin checks the peer's observed leaf certificate against the
// configured fingerprint. Standard chain verification is bypassed:
// identity is established by the pin alone.
func verifyPin(pin Fingerprint) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: peer presented no certificate", ErrHandshake)
		}
		got := LeafFingerprint(rawCerts[0])
		if got != pin {
			return fmt.Errorf("%w: leaf fingerprint %s does not match pin %s", ErrHandshake, got, pin)
		}
		return nil
	}
}

// ClientTLS builds the dialing side's TLS configuration: present our
// identity, require the peer's leaf to match the pin.
func ClientTLS(identity tls.Certificate, pin Fingerprint) *tls.Config {
	return &tls.Config{
		Certificates:          []tls.Certificate{identity},
		InsecureSkipVerify:    true, // replaced by pin verification
		VerifyPeerCertificate: verifyPin(pin),
		MinVersion:            tls.VersionTLS12,
	}
}

// ServerTLS builds the listening side's TLS configuration: demand a
// client certificate and pin its leaf.
func ServerTLS(identity tls.Certificate, pin Fingerprint) *tls.Config {
	return &tls.Config{
		Certificates:          []tls.Certificate{identity},
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: verifyPin(pin),
		MinVersion:            tls.VersionTLS12,
	}
}
