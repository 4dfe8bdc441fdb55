package tlsnet_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/tcp"
	"github.com/momentics/netreactor/tlsnet"
)

func newTestService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewService(2, api.ServiceSink{})
	require.True(t, svc.Start(false))
	t.Cleanup(func() { svc.Stop() })
	return svc
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

func TestTLSEchoByteConservation(t *testing.T) {
	svc := newTestService(t)
	cert := selfSignedCert(t)

	serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	srv := tlsnet.NewServer(svc, api.ServerSink{}, func(s *tcp.Session) api.SessionSink {
		return api.SessionSink{OnReceived: func(buf []byte) { s.Send(buf) }}
	}, api.Default(), serverCfg)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	clientCfg := &tls.Config{InsecureSkipVerify: true}
	received := make(chan string, 1)
	client := tlsnet.NewClient(addr, svc, api.SessionSink{
		OnReceived: func(buf []byte) { received <- string(buf) },
	}, api.Default(), clientCfg)
	require.NoError(t, client.ConnectSync(context.Background()))
	t.Cleanup(func() { client.Disconnect() })

	require.True(t, client.Send([]byte("secure hello")))

	select {
	case got := <-received:
		require.Equal(t, "secure hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("echo never completed")
	}
}

func TestTLSHandshakeFailureIsClassified(t *testing.T) {
	svc := newTestService(t)
	cert := selfSignedCert(t)

	serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	errCh := make(chan error, 1)
	srv := tlsnet.NewServer(svc, api.ServerSink{
		OnError: func(err error) { errCh <- err },
	}, func(s *tcp.Session) api.SessionSink { return api.SessionSink{} }, api.Default(), serverCfg)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	addr := serverAddr(t, srv)

	badClientCfg := &tls.Config{InsecureSkipVerify: false, ServerName: "wrong-name"}
	client := tlsnet.NewClient(addr, svc, api.SessionSink{}, api.Default(), badClientCfg)
	_ = client.ConnectSync(context.Background())

	select {
	case err := <-errCh:
		apiErr, ok := err.(*api.Error)
		require.True(t, ok)
		require.Equal(t, api.ErrCodeTLS, apiErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("expected server to classify the handshake failure as ErrCodeTLS")
	}
}

func serverAddr(t *testing.T, srv *tlsnet.Server) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a := srv.Addr(); a != "" {
			return a
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never bound a listen address")
	return ""
}
