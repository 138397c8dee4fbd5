package core

import "github.com/switchboard-io/switchboard/internal/serde"

// LinkKind tags the variant of a Link.
type LinkKind int

const (
	LinkFile LinkKind = iota
	LinkHTTP
	LinkStorage
	LinkK8sResource
)

// StorageDescriptor addresses a blob in the controller's object store,
// keyed by (id, revision).
type StorageDescriptor struct {
	ID string
	Revision string
}

// K8sResourceRef addresses a namespaced Kubernetes object, typically a
// kubernetes.io/tls Secret.
type K8sResourceRef struct {
	Namespace string
	Name string
}

// Link is an unresolved reference to data that must be fetched through a
// kind-specific resolver before a ServiceConfig can be installed.
type Link struct {
	Kind LinkKind
	Path string // LinkFile
	URI string // LinkHTTP
	Storage StorageDescriptor
	K8s K8sResourceRef
}

func FileLink(path string) Link { return Link{Kind: LinkFile, Path: path} }
func HTTPLink(uri string) Link { return Link{Kind: LinkHTTP, URI: uri} }
func StorageLink(id, revision string) Link {
	return Link{Kind: LinkStorage, Storage: StorageDescriptor{ID: id, Revision: revision}}
}
func K8sResourceLink(namespace, name string) Link {
	return Link{Kind: LinkK8sResource, K8s: K8sResourceRef{Namespace: namespace, Name: name}}
}

var linkKindNames = map[LinkKind]string{
	LinkFile: "file",
	LinkHTTP: "http",
	LinkStorage: "storage",
	LinkK8sResource: "k8s",
}

var linkKindsByName = map[string]LinkKind{
	"file": LinkFile,
	"http": LinkHTTP,
	"storage": LinkStorage,
	"k8s": LinkK8sResource,
}

// LinkToValue encodes a Link for the wire, used when a submitted config
// carries an unresolved certificate reference instead of inline bytes.
func LinkToValue(l Link) serde.Value {
	return serde.Map(map[string]serde.Value{
		"kind": serde.String(linkKindNames[l.Kind]),
		"path": serde.String(l.Path),
		"uri": serde.String(l.URI),
		"storage_id": serde.String(l.Storage.ID),
		"storage_revision": serde.String(l.Storage.Revision),
		"k8s_namespace": serde.String(l.K8s.Namespace),
		"k8s_name": serde.String(l.K8s.Name),
	})
}

// LinkFromValue is the inverse of LinkToValue.
func LinkFromValue(v serde.Value) (Link, bool) {
	m, ok := v.AsMap()
	if !ok {
		return Link{}, false
	}
	kindName, _ := m["kind"].AsString()
	kind, ok := linkKindsByName[kindName]
	if !ok {
		return Link{}, false
	}
	path, _ := m["path"].AsString()
	uri, _ := m["uri"].AsString()
	storageID, _ := m["storage_id"].AsString()
	storageRevision, _ := m["storage_revision"].AsString()
	k8sNamespace, _ := m["k8s_namespace"].AsString()
	k8sName, _ := m["k8s_name"].AsString()
	return Link{
		Kind: kind,
		Path: path,
		URI: uri,
		Storage: StorageDescriptor{ID: storageID, Revision: storageRevision},
		K8s: K8sResourceRef{Namespace: k8sNamespace, Name: k8sName},
	}, true
}
