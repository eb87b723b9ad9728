package engine

import "net/http"

// proxyTransport decorates every outbound request so it reaches a node's
// engine through the agent's /proxy.docker passthrough (§4.2): the request
// path is prefixed and the shared bearer token is attached as a header.
type proxyTransport struct {
	base  http.RoundTripper
	token string
}

const tokenHeader = "X-REKCOD-TOKEN"

func newProxyTransport(base http.RoundTripper, token string) *proxyTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &proxyTransport{base: base, token: token}
}

func (t *proxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.URL.Path = "/proxy.docker" + cloned.URL.Path
	if cloned.URL.RawPath != "" {
		cloned.URL.RawPath = "/proxy.docker" + cloned.URL.RawPath
	}
	cloned.Header.Set(tokenHeader, t.token)
	return t.base.RoundTrip(cloned)
}
