package resolve

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ClientGoSecretFetcher implements K8sSecretFetcher against a real
// kubernetes.Interface, the same client the controller's K8s discoverer
// already builds from the ambient kubeconfig.
type ClientGoSecretFetcher struct {
	Client kubernetes.Interface
}

func NewClientGoSecretFetcher(client kubernetes.Interface) *ClientGoSecretFetcher {
	return &ClientGoSecretFetcher{Client: client}
}

func (f *ClientGoSecretFetcher) GetSecretData(ctx context.Context, namespace, name string) (map[string][]byte, error) {
	secret, err := f.Client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	if secret.Data == nil {
		return map[string][]byte{}, nil
	}
	return copySecretData(secret.Data), nil
}

func copySecretData(data map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
