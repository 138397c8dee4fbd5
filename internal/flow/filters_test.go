package flow

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

func TestRequestRedirectFilter(t *testing.T) {
	filter, err := newRequestRedirectFilter(core.InstanceData{
		Config: serde.Map(map[string]serde.Value{
			"StatusCode":       serde.Int(302),
			"LocationTemplate": serde.String("https://new.example.com{path=/}"),
		}),
	}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://old.example.com/", nil)
	resp, err := filter.Handle(nil, req, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "https://new.example.com/", resp.Header.Get("Location"))
}

type timeoutNextStub struct {
	delay time.Duration
	resp  *http.Response
}

func (s timeoutNextStub) Call(*http.Request) (*http.Response, error) {
	time.Sleep(s.delay)
	return s.resp, nil
}

func TestTimeoutFilterFiresOnSlowNext(t *testing.T) {
	filter, err := newTimeoutFilter(core.InstanceData{
		Config: serde.Map(map[string]serde.Value{
			"Duration":      serde.String("10ms"),
			"TimeoutStatus": serde.Int(504),
			"TimeoutBody":   serde.String("timed out"),
		}),
	}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp, err := filter.Handle(nil, req, timeoutNextStub{delay: 50 * time.Millisecond, resp: &http.Response{StatusCode: 200}})
	require.NoError(t, err)
	require.Equal(t, 504, resp.StatusCode)
}

func TestTimeoutFilterPassesThroughFastNext(t *testing.T) {
	filter, err := newTimeoutFilter(core.InstanceData{
		Config: serde.Map(map[string]serde.Value{
			"Duration": serde.String("50ms"),
		}),
	}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp, err := filter.Handle(nil, req, timeoutNextStub{delay: time.Millisecond, resp: &http.Response{StatusCode: 200}})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestHeaderModifyFilterSetRemoveAdd(t *testing.T) {
	filter, err := newRequestHeaderModifyFilter(core.InstanceData{
		Config: serde.Map(map[string]serde.Value{
			"Set":    serde.Map(map[string]serde.Value{"X-Set": serde.String("v")}),
			"Remove": serde.Sequence([]serde.Value{serde.String("X-Drop")}),
		}),
	}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("X-Drop", "gone")

	var seenSet, seenDrop string
	_, err = filter.Handle(nil, req, next(func(r *http.Request) (*http.Response, error) {
		seenSet = r.Header.Get("X-Set")
		seenDrop = r.Header.Get("X-Drop")
		return &http.Response{StatusCode: 200}, nil
	}))
	require.NoError(t, err)
	require.Equal(t, "v", seenSet)
	require.Equal(t, "", seenDrop)
}
