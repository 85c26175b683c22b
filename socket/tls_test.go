//go:build linux

package socket

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedTLSCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

// waitAccept retries Accept until a connection is pending or timeout
// elapses; a production driver would instead wait for epoll readiness
// on the listening socket (see tcp_test.go's single-sleep variant for
// the simpler case where the peer is already known to have connected).
func waitAccept(t *testing.T, ln *Listener, cb Callbacks) *Base {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := ln.Accept(cb)
		if err == nil {
			return conn
		}
		if !IsWouldBlock(err) {
			t.Fatalf("Accept: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a pending connection")
	return nil
}

func TestTlsStreamHandshakeAndEcho(t *testing.T) {
	cert := selfSignedTLSCert(t)
	serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	clientCfg := &tls.Config{InsecureSkipVerify: true, ServerName: "localhost"}

	addr := NewAddress(IPv4Loopback.IP(), 0)
	ln, err := ListenTCP(addr, nil)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()
	boundAddr := localAddr(t, ln.FD)

	type clientResult struct {
		ts  *TlsStream
		err error
	}
	clientDone := make(chan clientResult, 1)
	go func() {
		ts, err := DialTLS(boundAddr, clientCfg, Callbacks{})
		clientDone <- clientResult{ts, err}
	}()

	echoed := make(chan []byte, 1)
	plainConn := waitAccept(t, ln, Callbacks{})
	serverTS, err := WrapServerTLS(plainConn, serverCfg, Callbacks{
		OnReadable: func(s *Base) {
			echoed <- s.DrainRead()
		},
	})
	if err != nil {
		t.Fatalf("WrapServerTLS: %v", err)
	}
	if err := serverTS.Start(); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer serverTS.CloseFD()

	res := <-clientDone
	if res.err != nil {
		t.Fatalf("DialTLS: %v", res.err)
	}
	clientTS := res.ts
	defer clientTS.CloseFD()

	msg := []byte("hello over tls")
	if _, err := clientTS.Write(msg); err != nil {
		t.Fatalf("client Write: %v", err)
	}

	select {
	case got := <-echoed:
		if string(got) != string(msg) {
			t.Errorf("server received %q, want %q", got, msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive the message")
	}

	if clientTS.ConnectionState().Version == 0 {
		t.Error("expected a negotiated TLS version")
	}
}
