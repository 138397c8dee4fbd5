package resolve

import (
	"context"
	"encoding/pem"
	"fmt"

	"github.com/switchboard-io/switchboard/internal/core"
)

// ResolveCertParams materializes a Link into CertParams, satisfying
// gatewayapi.CertResolver. A K8sResource link fetches a kubernetes.io/tls
// Secret and reads its "tls.crt"/"tls.key" (and optional "ca.crt") data
// keys directly, mirroring how the Kubernetes TLS secret convention
// stores them; every other link kind fetches raw bytes and PEM-decodes
// them, so a single combined "cert.pem" (chain + key concatenated) works
// equally well as a File or HTTP link.
func (r *Resolver) ResolveCertParams(ctx context.Context, link core.Link) (core.CertParams, error) {
	if link.Kind == core.LinkK8sResource {
		return r.resolveK8sCertParams(ctx, link.K8s)
	}

	data, _, err := r.fetch(ctx, link)
	if err != nil {
		return core.CertParams{}, err
	}
	return certParamsFromPEM(data)
}

func (r *Resolver) resolveK8sCertParams(ctx context.Context, ref core.K8sResourceRef) (core.CertParams, error) {
	if r.K8s == nil {
		return core.CertParams{}, &UnresolvableLinkError{Kind: core.LinkK8sResource}
	}
	data, err := r.K8s.GetSecretData(ctx, ref.Namespace, ref.Name)
	if err != nil {
		return core.CertParams{}, fmt.Errorf("resolve: fetching secret %s/%s: %w", ref.Namespace, ref.Name, err)
	}

	certBytes := data["tls.crt"]
	keyBytes := data["tls.key"]
	if len(certBytes) == 0 {
		return core.CertParams{}, fmt.Errorf("resolve: secret %s/%s has no tls.crt entry", ref.Namespace, ref.Name)
	}

	params, err := certParamsFromPEM(certBytes)
	if err != nil {
		return core.CertParams{}, fmt.Errorf("resolve: secret %s/%s tls.crt: %w", ref.Namespace, ref.Name, err)
	}
	if len(keyBytes) > 0 {
		keyParams, err := certParamsFromPEM(keyBytes)
		if err != nil {
			return core.CertParams{}, fmt.Errorf("resolve: secret %s/%s tls.key: %w", ref.Namespace, ref.Name, err)
		}
		params.PrivateKey = keyParams.PrivateKey
	}
	if ca, ok := data["ca.crt"]; ok && len(ca) > 0 {
		caParams, err := certParamsFromPEM(ca)
		if err != nil {
			return core.CertParams{}, fmt.Errorf("resolve: secret %s/%s ca.crt: %w", ref.Namespace, ref.Name, err)
		}
		params.CertChain = append(params.CertChain, caParams.CertChain...)
	}
	return params, nil
}

// certParamsFromPEM walks every PEM block in data, sorting certificates
// into an ordered chain (leaf first, in file order) and the first private
// key block into CertParams.PrivateKey. It accepts RSA, EC, and PKCS8
// private key block types since Go's tls package itself treats all three
// as equivalent DER containers once parsed by tls.X509KeyPair.
func certParamsFromPEM(data []byte) (core.CertParams, error) {
	var params core.CertParams
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			params.CertChain = append(params.CertChain, block.Bytes)
		case "RSA PRIVATE KEY", "EC PRIVATE KEY", "PRIVATE KEY":
			if params.PrivateKey == nil {
				params.PrivateKey = block.Bytes
			}
		}
	}
	if len(params.CertChain) == 0 {
		return core.CertParams{}, fmt.Errorf("resolve: no PEM certificate block found")
	}
	return params, nil
}
