package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
)

type RequestOption func(req *http.Request) *http.Request

func WithContext(ctx context.Context) RequestOption {
	return func(req *http.Request) *http.Request {
		return req.WithContext(ctx)
	}
}

func WithHeader(key string, value string, values ...string) RequestOption {
	return func(req *http.Request) *http.Request {
		req.Header.Add(key, value)
		for _, v := range values {
			req.Header.Add(key, v)
		}
		return req
	}
}

// Get sends a GET request to e, through its router and middlewares.
func Get(e *echo.Echo, target string, reqopts ...RequestOption) *httptest.ResponseRecorder {
	return serve(e, httptest.NewRequest(http.MethodGet, target, nil), reqopts...)
}

// Post sends a POST request to e, through its router and middlewares.
func Post(e *echo.Echo, target string, data io.Reader, reqopts ...RequestOption) *httptest.ResponseRecorder {
	return serve(e, httptest.NewRequest(http.MethodPost, target, data), reqopts...)
}

func serve(e *echo.Echo, req *http.Request, reqopts ...RequestOption) *httptest.ResponseRecorder {
	for _, opt := range reqopts {
		req = opt(req)
	}
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, req)
	return resp
}
