package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/keyward/internal/audit"
)

// PermissionFunc maps a full gRPC method name to the permission it requires.
type PermissionFunc func(fullMethod string) string

// StaticPermission requires the same permission for every method.
func StaticPermission(permission string) PermissionFunc {
	return func(string) string { return permission }
}

// MethodPermissions looks the method up in m and falls back to def.
func MethodPermissions(m map[string]string, def string) PermissionFunc {
	return func(fullMethod string) string {
		if p, ok := m[fullMethod]; ok {
			return p
		}
		return def
	}
}

// AuthenticateGRPC authenticates an incoming gRPC call. Signed calls sign
// the full method name.
func (a *Authenticator) AuthenticateGRPC(ctx context.Context, fullMethod, permission string) (*Identity, error) {
	creds, credErr := a.extractor.ExtractFromGRPC(ctx)
	sigHeader, tsHeader := a.config.signatureHeaders()
	md, _ := metadata.FromIncomingContext(ctx)

	req := &request{
		transport:  "grpc",
		permission: permission,
		creds:      creds,
		credErr:    credErr,
		payload:    func() ([]byte, error) { return []byte(fullMethod), nil },
		signature:  first(md.Get(strings.ToLower(sigHeader))),
		timestamp:  first(md.Get(strings.ToLower(tsHeader))),
		subject: audit.Subject{
			UserAgent:  first(md.Get("user-agent")),
			AuthMethod: string(AuthTypeAPIKey),
		},
		resource: audit.Resource{
			Path:       fullMethod,
			Method:     "grpc",
			Permission: permission,
		},
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		req.subject.IPAddress = remoteIP(p.Addr.String())
	}
	return a.check(ctx, req)
}

// UnaryInterceptor returns a unary server interceptor for authentication.
func (a *Authenticator) UnaryInterceptor(permissions PermissionFunc) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (interface{}, error) {
		identity, err := a.AuthenticateGRPC(ctx, info.FullMethod, permissions(info.FullMethod))
		if err != nil {
			return nil, unauthenticated()
		}
		return handler(ContextWithIdentity(ctx, identity), req)
	}
}

// StreamInterceptor returns a stream server interceptor for authentication.
func (a *Authenticator) StreamInterceptor(permissions PermissionFunc) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		identity, err := a.AuthenticateGRPC(ctx, info.FullMethod, permissions(info.FullMethod))
		if err != nil {
			return unauthenticated()
		}

		wrapped := &authenticatedServerStream{
			ServerStream: ss,
			ctx:          ContextWithIdentity(ctx, identity),
		}
		return handler(srv, wrapped)
	}
}

func unauthenticated() error {
	return status.Error(codes.Unauthenticated, UnauthorizedError)
}

// authenticatedServerStream wraps a grpc.ServerStream with an authenticated context.
type authenticatedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the authenticated context.
func (s *authenticatedServerStream) Context() context.Context {
	return s.ctx
}
