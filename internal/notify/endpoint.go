package notify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidEndpoint is returned when the socket URL cannot be built.
var ErrInvalidEndpoint = errors.New("invalid notification endpoint")

// Endpoint describes where the notification socket lives.
//
// Origin is the console's own address (e.g. https://console.example.com); its
// scheme selects wss or ws and its host is used unless Host overrides it.
type Endpoint struct {
	Origin string // Console origin, scheme decides ws/wss
	Host   string // Optional host[:port] override
	Path   string // Socket path, e.g. /ws/notification
}

// URL builds {scheme}://{host}/{path}?token={token}. An empty token is still
// sent as an empty parameter; the server decides whether to reject it.
func (e Endpoint) URL(token string) (string, error) {
	origin, err := url.Parse(e.Origin)
	if err != nil {
		return "", fmt.Errorf("%w: parse origin %q: %v", ErrInvalidEndpoint, e.Origin, err)
	}

	var scheme string
	switch strings.ToLower(origin.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported origin scheme %q", ErrInvalidEndpoint, origin.Scheme)
	}

	host := strings.TrimSpace(e.Host)
	if host == "" {
		host = origin.Host
	}
	if host == "" {
		return "", fmt.Errorf("%w: no host", ErrInvalidEndpoint)
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/" + strings.TrimLeft(e.Path, "/"),
		RawQuery: "token=" + url.QueryEscape(token),
	}
	return u.String(), nil
}
