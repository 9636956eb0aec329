package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts HTTP calls so media retrieval can be served by fakes in tests.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
