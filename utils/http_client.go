package utils

import (
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

type HTTPClientOption func(*http.Client)

// WithTimeout 非正数时保留默认超时
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *http.Client) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

func NewHTTPClient(opts ...HTTPClientOption) *http.Client {
	c := &http.Client{
		Timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
