package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
)

// chromeH1Spec builds a Chrome ClientHello with ALPN restricted to http/1.1,
// since net/http cannot speak h2 over a utls connection. ApplyPreset mutates
// the extensions, so every connection gets a fresh spec.
func chromeH1Spec() (tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return spec, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return spec, nil
}

// newChromeTransport returns a transport whose TLS handshakes carry a Chrome
// fingerprint. An http(s) proxy URL routes requests through that proxy.
func newChromeTransport(proxy string) *http.Transport {
	transport := &http.Transport{
		DialTLSContext:        dialChromeTLS,
		ForceAttemptHTTP2:     false,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	spec, err := chromeH1Spec()
	if err != nil {
		return nil, fmt.Errorf("build tls spec: %w", err)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
