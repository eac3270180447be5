package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, cn string) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestParseFingerprint(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	f, err := ParseFingerprint(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, f.String())

	_, err = ParseFingerprint("zz")
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ParseFingerprint("abcd")
	assert.ErrorIs(t, err, ErrConfig)
}

func handshake(t *testing.T, serverCfg, clientCfg *tls.Config) (error, error) {
	t.Helper()
	a, b := net.Pipe()
	server := tls.Server(a, serverCfg)
	client := tls.Client(b, clientCfg)
	defer server.Close()
	defer client.Close()

	srvErr := make(chan error, 1)
	go func() { srvErr <- server.Handshake() }()
	cliErr := client.Handshake()
	return <-srvErr, cliErr
}

func TestPinnedHandshakeSucceeds(t *testing.T) {
	serverID := selfSigned(t, "desk-b")
	clientID := selfSigned(t, "desk-a")
	serverPin := LeafFingerprint(serverID.Certificate[0])
	clientPin := LeafFingerprint(clientID.Certificate[0])

	sErr, cErr := handshake(t, ServerTLS(serverID, clientPin), ClientTLS(clientID, serverPin))
	assert.NoError(t, sErr)
	assert.NoError(t, cErr)
}

func TestClientRejectsWrongServerPin(t *testing.T) {
	serverID := selfSigned(t, "desk-b")
	clientID := selfSigned(t, "desk-a")
	imposter := selfSigned(t, "imposter")
	clientPin := LeafFingerprint(clientID.Certificate[0])
	wrongPin := LeafFingerprint(imposter.Certificate[0])

	_, cErr := handshake(t, ServerTLS(serverID, clientPin), ClientTLS(clientID, wrongPin))
	assert.Error(t, cErr)
}

func TestServerRejectsWrongClientPin(t *testing.T) {
	serverID := selfSigned(t, "desk-b")
	clientID := selfSigned(t, "desk-a")
	imposter := selfSigned(t, "imposter")
	serverPin := LeafFingerprint(serverID.Certificate[0])
	wrongPin := LeafFingerprint(imposter.Certificate[0])

	sErr, _ := handshake(t, ServerTLS(serverID, wrongPin), ClientTLS(clientID, serverPin))
	assert.Error(t, sErr)
}

func TestLoadIdentityMissingFile(t *testing.T) {
	_, err := LoadIdentity("/does/not/exist.p12", "pw")
	assert.ErrorIs(t, err, ErrConfig)
}
