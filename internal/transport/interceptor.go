package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/sirupsen/logrus"
)

// Handler sends a request with the given headers.
type Handler func(ctx context.Context, req *gql.Request, header http.Header) (*gql.Response, error)

// Interceptor wraps a request on its way out.
type Interceptor func(ctx context.Context, req *gql.Request, header http.Header, next Handler) (*gql.Response, error)

// ChainInterceptors runs interceptors in order, the first one outermost.
func ChainInterceptors(interceptors ...Interceptor) Interceptor {
	return func(ctx context.Context, req *gql.Request, header http.Header, next Handler) (*gql.Response, error) {
		chained := next
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor, inner := interceptors[i], chained
			chained = func(ctx context.Context, req *gql.Request, header http.Header) (*gql.Response, error) {
				return interceptor(ctx, req, header, inner)
			}
		}
		return chained(ctx, req, header)
	}
}

// AuthInterceptor attaches the bearer token when there is one.
func AuthInterceptor(src token.Source) Interceptor {
	return func(ctx context.Context, req *gql.Request, header http.Header, next Handler) (*gql.Response, error) {
		bearer, err := token.Bearer(src)
		if err != nil {
			return nil, err
		}
		if bearer != "" {
			header.Set("Authorization", "Bearer "+bearer)
		}
		return next(ctx, req, header)
	}
}

// RequestTimeInterceptor logs how long each operation took.
func RequestTimeInterceptor() Interceptor {
	return func(ctx context.Context, req *gql.Request, header http.Header, next Handler) (*gql.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req, header)
		reqTime := time.Since(start)

		name := req.OperationName
		if name == "" {
			name = "anonymous"
		}
		if err != nil {
			logrus.Warnf("request time: %v: %v: %v", name, reqTime, err)
		} else {
			logrus.Debugf("request time: %v: %v", name, reqTime)
		}
		return resp, err
	}
}
