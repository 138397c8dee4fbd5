package flow

import (
	"io"
	"net/http"
	"strings"

	sbrouter "github.com/switchboard-io/switchboard/internal/router"
)

// ErrorKindHeader carries a machine-readable tag identifying the failure
// category of a rendered flow error.
const ErrorKindHeader = "X-Flow-Error-Kind"

// RenderError turns an error returned from Flow.Dispatch or Context.Call
// into an HTTP response, tagging it with ErrorKindHeader. Flow errors
// never panic the caller; this is the boundary where they become wire
// responses.
func RenderError(err error) *http.Response {
	status, kind := classifyError(err)
	body := err.Error()
	resp := &http.Response{
		StatusCode: status,
		Status: http.StatusText(status),
		Header: http.Header{},
		Body: io.NopCloser(strings.NewReader(body)),
		Proto: "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
	resp.Header.Set(ErrorKindHeader, kind)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

func classifyError(err error) (status int, kind string) {
	switch err.(type) {
	case *InvalidPortError:
		return http.StatusInternalServerError, "invalid_port"
	case *LoopDetectedError:
		return http.StatusInternalServerError, "loop_detected"
	case *NodeNotFoundError:
		return http.StatusInternalServerError, "node_not_found"
	case *FilterNotFoundError:
		return http.StatusInternalServerError, "filter_not_found"
	case *UpstreamTimeoutError:
		return http.StatusGatewayTimeout, "upstream_timeout"
	case *UpstreamConnectError:
		return http.StatusBadGateway, "upstream_connect"
	case *UpstreamTransportError:
		return http.StatusBadGateway, "upstream_transport"
	case *sbrouter.HostNotFoundError:
		return http.StatusNotFound, "host_not_found"
	case *sbrouter.NoMatchRouteError:
		return http.StatusNotFound, "no_match_route"
	default:
		return http.StatusInternalServerError, "unknown"
	}
}
