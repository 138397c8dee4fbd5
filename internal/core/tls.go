package core

// CertParams is the ordered certificate chain plus private key and
// optional OCSP response that backs one TLS identity.
type CertParams struct {
	// CertChain is an ordered list of DER-encoded certificates, leaf first.
	CertChain [][]byte
	// PrivateKey is the DER-encoded private key for the leaf certificate.
	PrivateKey []byte
	// OCSPResponse is an optional DER-encoded OCSP staple.
	OCSPResponse []byte
}

// TLSResolverKind tags which strategy a TLSConfig's resolver uses to pick a
// certificate for an incoming handshake.
type TLSResolverKind int

const (
	// TLSResolverSNI selects a CertParams by SNI hostname.
	TLSResolverSNI TLSResolverKind = iota
	// TLSResolverSingle always serves the one configured CertParams.
	TLSResolverSingle
)

// TLSOptions carries handshake-level tuning shared by every certificate
// served under this TLSConfig.
type TLSOptions struct {
	MinVersion   string
	MaxVersion   string
	CipherSuites []string
}

// TLSConfig is the value type of ServiceConfig.TLS: either an SNI map of
// hostname to CertParams, or a single CertParams served regardless of SNI.
type TLSConfig struct {
	Resolver TLSResolverKind
	// SNI is populated when Resolver == TLSResolverSNI.
	SNI map[string]CertParams
	// Single is populated when Resolver == TLSResolverSingle.
	Single  CertParams
	Options TLSOptions
	// CertLink, when non-nil, names an unresolved source for Single that
	// must be materialized by a resolve.Resolver before this TLSConfig can
	// be pushed to a kernel. A config carrying a CertLink fails Validate.
	CertLink *Link
}

// CertForHostname resolves the certificate to present for the given SNI
// hostname (empty for no SNI). The SNI resolver uses the entry whose key
// equals hostname exactly, else the "*" entry; no other wildcard patterns
// are matched.
func (t TLSConfig) CertForHostname(hostname string) (CertParams, bool) {
	switch t.Resolver {
	case TLSResolverSingle:
		return t.Single, true
	case TLSResolverSNI:
		if cert, ok := t.SNI[hostname]; ok {
			return cert, true
		}
		if cert, ok := t.SNI["*"]; ok {
			return cert, true
		}
		return CertParams{}, false
	default:
		return CertParams{}, false
	}
}
