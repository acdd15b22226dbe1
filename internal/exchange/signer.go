package exchange

// Signer produces the headers a mutating REST call or an authenticated
// WebSocket subscription needs. Kalshi signs requests with an RSA-PSS
// signature over {timestamp}{method}{path} rather than the teacher's
// EIP-712/HMAC scheme; request signing itself is out of scope here (see
// DESIGN.md), so Signer is a narrow seam with no concrete implementation
// in this package — callers inject one, or use NoopSigner for local/dry-run
// testing against an unauthenticated mock server.
type Signer interface {
	// SignREST returns the headers to attach to a REST request for
	// (method, path, body) at unix-millisecond timestamp ts.
	SignREST(method, path, body string, ts int64) (map[string]string, error)

	// WSAuthPayload returns the fields the streaming feed's subscribe
	// command embeds to authenticate the private fill channel.
	WSAuthPayload() map[string]string
}

// NoopSigner implements Signer with no signature, for talking to a local
// mock exchange that doesn't check authentication.
type NoopSigner struct{}

func (NoopSigner) SignREST(method, path, body string, ts int64) (map[string]string, error) {
	return nil, nil
}

func (NoopSigner) WSAuthPayload() map[string]string { return nil }

var _ Signer = NoopSigner{}
