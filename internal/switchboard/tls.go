package switchboard

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/switchboard-io/switchboard/internal/core"
)

// BuildTLSConfig materializes a core.TLSConfig into a *tls.Config. For the
// SNI resolver it installs GetCertificate so each handshake picks its
// certificate by ClientHello server name; for Single it always returns
// the one certificate.
func BuildTLSConfig(cfg core.TLSConfig) (*tls.Config, error) {
	switch cfg.Resolver {
	case core.TLSResolverSNI:
		certs := map[string]*tls.Certificate{}
		for host, params := range cfg.SNI {
			cert, err := certParamsToCertificate(params)
			if err != nil {
				return nil, fmt.Errorf("sni cert for %q: %w", host, err)
			}
			certs[host] = cert
		}
		return &tls.Config{
			GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
				if cert, ok := certs[hello.ServerName]; ok {
					return cert, nil
				}
				if cert, ok := certs["*"]; ok {
					return cert, nil
				}
				return nil, fmt.Errorf("switchboard: no certificate for SNI %q", hello.ServerName)
			},
		}, nil
	default:
		cert, err := certParamsToCertificate(cfg.Single)
		if err != nil {
			return nil, fmt.Errorf("single cert: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{*cert}}, nil
	}
}

func certParamsToCertificate(params core.CertParams) (*tls.Certificate, error) {
	if len(params.CertChain) == 0 {
		return nil, fmt.Errorf("switchboard: cert params has no certificate chain")
	}

	cert := &tls.Certificate{}
	for _, der := range params.CertChain {
		if _, err := x509.ParseCertificate(der); err != nil {
			return nil, fmt.Errorf("parsing DER certificate: %w", err)
		}
		cert.Certificate = append(cert.Certificate, der)
	}

	key, err := parsePrivateKey(params.PrivateKey)
	if err != nil {
		return nil, err
	}
	cert.PrivateKey = key

	if len(params.OCSPResponse) > 0 {
		cert.OCSPStaple = params.OCSPResponse
	}

	leaf, err := x509.ParseCertificate(params.CertChain[0])
	if err == nil {
		cert.Leaf = leaf
	}

	return cert, nil
}

func parsePrivateKey(der []byte) (interface{}, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("switchboard: unrecognized private key encoding")
}
