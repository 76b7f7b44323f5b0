// Package apigrpc adapts the gate to gRPC server interceptors.
//
// Tokens travel in the "authorization" metadata key as "Bearer <token>".
// Because gRPC responses carry no cookies, no sliding refresh is performed;
// clients are expected to re-authenticate over HTTP when their token ages out.
package apigrpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/groundline/apigate"
)

// TokenExtractor pulls a raw token out of the incoming context.
type TokenExtractor func(ctx context.Context) (string, error)

var (
	// ErrMultipleAuthHeaders indicates more than one authorization metadata
	// entry was provided.
	ErrMultipleAuthHeaders = errors.New("multiple authorization metadata entries are not allowed")

	// ErrInvalidAuthFormat indicates the authorization metadata value is not
	// of the form "Bearer <token>".
	ErrInvalidAuthFormat = errors.New("invalid authorization metadata format, expected: Bearer <token>")
)

// MetadataTokenExtractor reads the token from the "authorization" metadata
// key. gRPC lowercases incoming metadata keys, so only the lowercase key is
// checked. Absent metadata yields an empty token, not an error.
func MetadataTokenExtractor(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return "", nil
	}
	if len(values) > 1 {
		return "", ErrMultipleAuthHeaders
	}

	parts := strings.Fields(values[0])
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrInvalidAuthFormat
	}
	return parts[1], nil
}

// Interceptor verifies tokens against a gate before dispatching gRPC
// handlers. The full method name serves as the operation identifier for
// authorization.
type Interceptor struct {
	gate            *apigate.Gate
	extractor       TokenExtractor
	excludedMethods map[string]bool
}

// Option configures the interceptor.
type Option func(*Interceptor) error

// WithTokenExtractor overrides how the token is pulled from the context.
func WithTokenExtractor(extractor TokenExtractor) Option {
	return func(i *Interceptor) error {
		if extractor == nil {
			return errors.New("token extractor cannot be nil")
		}
		i.extractor = extractor
		return nil
	}
}

// WithExcludedMethods marks full method names that bypass verification,
// such as health checks.
func WithExcludedMethods(methods ...string) Option {
	return func(i *Interceptor) error {
		for _, m := range methods {
			i.excludedMethods[m] = true
		}
		return nil
	}
}

// New creates an interceptor bound to the given gate.
func New(gate *apigate.Gate, opts ...Option) (*Interceptor, error) {
	if gate == nil {
		return nil, errors.New("gate cannot be nil")
	}

	interceptor := &Interceptor{
		gate:            gate,
		extractor:       MetadataTokenExtractor,
		excludedMethods: make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(interceptor); err != nil {
			return nil, err
		}
	}
	return interceptor, nil
}

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that verifies
// the caller's token and stores the principal in the handler context.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.excludedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		verified, err := i.verify(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(verified, req)
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor that
// verifies the caller's token and stores the principal in the stream context.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if i.excludedMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		verified, err := i.verify(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: verified})
	}
}

// Both missing credentials and failed authorization answer Unauthenticated
// without detail.
func (i *Interceptor) verify(ctx context.Context, method string) (context.Context, error) {
	raw, err := i.extractor(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if raw == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	principal, err := i.gate.CheckToken(ctx, raw, method)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "access denied")
	}

	return apigate.SetPrincipal(ctx, principal), nil
}

// wrappedServerStream overrides the stream context with the verified one.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
