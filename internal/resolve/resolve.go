// Package resolve turns an unresolved core.Link into materialized bytes,
// a decoded serde.Value, or TLS CertParams. It is the controller-side
// counterpart to the kernel's serde codecs: the kernel only ever installs
// a fully-resolved core.ServiceConfig, so every Link a config push or a
// Gateway API translation touches must be fetched and decoded here first.
package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// StorageFetcher is the read side of objectstore.Store, named separately
// here so this package doesn't need to import objectstore just to accept
// one method.
type StorageFetcher interface {
	Get(ctx context.Context, id, revision string) ([]byte, error)
}

// K8sSecretFetcher is the narrow k8s.io/client-go surface this package
// needs: fetching a single Secret's data by namespace/name.
type K8sSecretFetcher interface {
	GetSecretData(ctx context.Context, namespace, name string) (map[string][]byte, error)
}

// UnresolvableLinkError is returned when a Link names a kind this
// Resolver has no backing fetcher for (e.g. a Storage link with a nil
// Storage field).
type UnresolvableLinkError struct {
	Kind core.LinkKind
}

func (e *UnresolvableLinkError) Error() string {
	return fmt.Sprintf("resolve: no fetcher configured for link kind %d", e.Kind)
}

// Resolver fetches and decodes core.Link references. The zero value can
// resolve LinkFile and LinkHTTP (http.DefaultClient); Storage and K8s
// fetchers are opt-in so tests and single-purpose binaries don't have to
// wire unused backends.
type Resolver struct {
	HTTPClient *http.Client
	Storage StorageFetcher
	K8s K8sSecretFetcher
	Codecs *serde.Registry
}

// New returns a Resolver with a default HTTP client and codec registry.
// Storage and K8s are left nil; set them directly for the backends a
// caller actually has.
func New(storage StorageFetcher, k8s K8sSecretFetcher) *Resolver {
	return &Resolver{
		HTTPClient: http.DefaultClient,
		Storage: storage,
		K8s: k8s,
		Codecs: serde.NewRegistry(),
	}
}

// fetch returns the raw bytes a Link addresses, plus a format hint
// derived the same way the kernel derives one for on-disk configs: by
// file extension, falling back to "plaintext". Storage links carry no
// extension and are always decoded as "bincode".
func (r *Resolver) fetch(ctx context.Context, link core.Link) ([]byte, string, error) {
	switch link.Kind {
	case core.LinkFile:
		data, err := readFile(link.Path)
		if err != nil {
			return nil, "", fmt.Errorf("resolve: reading %s: %w", link.Path, err)
		}
		return data, serde.DetectByExtension(path.Ext(link.Path)), nil

	case core.LinkHTTP:
		data, err := r.fetchHTTP(ctx, link.URI)
		if err != nil {
			return nil, "", fmt.Errorf("resolve: fetching %s: %w", link.URI, err)
		}
		return data, serde.DetectByExtension(path.Ext(link.URI)), nil

	case core.LinkStorage:
		if r.Storage == nil {
			return nil, "", &UnresolvableLinkError{Kind: link.Kind}
		}
		data, err := r.Storage.Get(ctx, link.Storage.ID, link.Storage.Revision)
		if err != nil {
			return nil, "", fmt.Errorf("resolve: fetching storage object %s@%s: %w", link.Storage.ID, link.Storage.Revision, err)
		}
		return data, "bincode", nil

	default:
		return nil, "", &UnresolvableLinkError{Kind: link.Kind}
	}
}

func (r *Resolver) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Resolve fetches link and decodes it through the format its extension
// (or kind, for Storage links) selects.
func (r *Resolver) Resolve(ctx context.Context, link core.Link) (serde.Value, error) {
	data, format, err := r.fetch(ctx, link)
	if err != nil {
		return serde.Value{}, err
	}
	codecs := r.Codecs
	if codecs == nil {
		codecs = serde.NewRegistry()
	}
	codec, err := codecs.Lookup(format)
	if err != nil {
		return serde.Value{}, err
	}
	value, err := codec.DecodeValue(data)
	if err != nil {
		return serde.Value{}, fmt.Errorf("resolve: decoding %s as %s: %w", linkDescription(link), format, err)
	}
	return value, nil
}

func linkDescription(link core.Link) string {
	switch link.Kind {
	case core.LinkFile:
		return "file://" + link.Path
	case core.LinkHTTP:
		return link.URI
	case core.LinkStorage:
		return "storage://" + link.Storage.ID + "@" + link.Storage.Revision
	case core.LinkK8sResource:
		return "k8s://" + link.K8s.Namespace + "/" + link.K8s.Name
	default:
		return "<unknown link>"
	}
}

// readFile is a var so tests can substitute an in-memory filesystem
// without touching the OS.
var readFile = os.ReadFile
