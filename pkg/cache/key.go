package cache

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Origin is a normalised scheme + host (+ non-default port).
type Origin struct {
	Scheme string
	Host   string
}

// ParseOrigin parses an absolute URL and keeps only its origin.
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Origin{}, fmt.Errorf("origin %q must be an absolute URL", raw)
	}
	return OriginOf(u), nil
}

// OriginOf returns the origin of u. Default ports are dropped and
// scheme and host are lower-cased.
func OriginOf(u *url.URL) Origin {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return Origin{Scheme: scheme, Host: host}
}

// String renders the origin as scheme://host.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host
}

// IsZero reports whether the origin is unset.
func (o Origin) IsZero() bool {
	return o.Scheme == "" && o.Host == ""
}

// Resolve joins an origin-relative path onto the origin.
func (o Origin) Resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return o.String() + path
}

// RequestKey identifies a cache entry: method plus the request URL
// without its fragment.
type RequestKey struct {
	// Method is the HTTP method; an empty method is GET.
	Method string

	// Origin is the normalised origin of the request URL.
	Origin Origin

	// Target is the escaped path and query (e.g., "/news?page=2").
	Target string
}

// KeyFor derives the RequestKey of an outbound request.
func KeyFor(req *http.Request) RequestKey {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return RequestKey{
		Method: method,
		Origin: OriginOf(req.URL),
		Target: req.URL.RequestURI(),
	}
}

// String generates the storage key.
// Format: METHOD scheme://host/path?query
//
// Example:
//
//	GET https://app.example.com/news?page=2
func (k RequestKey) String() string {
	return k.Method + " " + k.Origin.String() + k.Target
}

// Eligible reports whether the key may be intercepted and cached for an
// application served from origin: GET and same-origin only.
func (k RequestKey) Eligible(origin Origin) bool {
	return k.Method == http.MethodGet && k.Origin == origin
}
