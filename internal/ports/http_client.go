package ports

import "net/http"

// HTTPClient is the part of *http.Client the HTTP transport uses.
// Tests substitute it to observe or fail outgoing requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)
