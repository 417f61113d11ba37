package enrich

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"
)

// chromeH1Spec builds a Chrome ClientHello with ALPN restricted to
// http/1.1, since net/http cannot speak h2 over a utls connection.
// ApplyPreset keeps the spec's extension pointers and utls writes the
// server name into them, so every connection needs its own spec.
func chromeH1Spec() (*tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			break
		}
	}
	return &spec, nil
}

// NewClient returns the shared probe client. Connections are never reused
// and at most maxConnsPerHost are open to any one merchant.
func NewClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		MaxConnsPerHost:   maxConnsPerHost,
		DialTLSContext:    dialChromeTLS,
		ForceAttemptHTTP2: false,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("enrich: too many redirects")
			}
			return nil
		},
	}
}

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn, err := handshakeChrome(ctx, conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// handshakeChrome runs a Chrome-fingerprinted TLS handshake over conn for
// serverName. The caller closes conn on error.
func handshakeChrome(ctx context.Context, conn net.Conn, serverName string) (*tls.UConn, error) {
	spec, err := chromeH1Spec()
	if err != nil {
		return nil, fmt.Errorf("enrich: build tls spec: %w", err)
	}
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: serverName}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		return nil, fmt.Errorf("enrich: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}
