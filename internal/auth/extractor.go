package auth

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Credentials represents an extracted raw API key.
type Credentials struct {
	// Value is the raw key.
	Value string

	// Source is where the credential was extracted from.
	Source string
}

// Extractor extracts credentials from requests.
type Extractor interface {
	// Extract extracts an API key from the request.
	Extract(r *http.Request) (*Credentials, error)

	// ExtractFromGRPC extracts an API key from gRPC metadata.
	ExtractFromGRPC(ctx context.Context) (*Credentials, error)
}

// extractor implements the Extractor interface.
type extractor struct {
	header     string
	queryParam string
}

// NewExtractor creates a credential extractor. It consults header (with a
// "Bearer " prefix stripped), then the Authorization bearer token, then the
// query parameter. An empty queryParam disables the query fallback.
func NewExtractor(header, queryParam string) Extractor {
	if header == "" {
		header = HeaderXAPIKey
	}
	return &extractor{header: header, queryParam: queryParam}
}

// Extract extracts an API key from the request.
func (e *extractor) Extract(r *http.Request) (*Credentials, error) {
	if v := stripBearer(r.Header.Get(e.header)); v != "" {
		return &Credentials{Value: v, Source: "header:" + e.header}, nil
	}
	if !strings.EqualFold(e.header, HeaderAuthorization) {
		if v := bearerToken(r.Header.Get(HeaderAuthorization)); v != "" {
			return &Credentials{Value: v, Source: "header:" + HeaderAuthorization}, nil
		}
	}
	if e.queryParam != "" {
		if v := strings.TrimSpace(r.URL.Query().Get(e.queryParam)); v != "" {
			return &Credentials{Value: v, Source: "query:" + e.queryParam}, nil
		}
	}
	return nil, ErrNoCredentials
}

// ExtractFromGRPC extracts an API key from gRPC metadata.
func (e *extractor) ExtractFromGRPC(ctx context.Context) (*Credentials, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, ErrNoCredentials
	}

	// gRPC metadata keys are lowercase.
	name := strings.ToLower(e.header)
	if v := stripBearer(first(md.Get(name))); v != "" {
		return &Credentials{Value: v, Source: "metadata:" + name}, nil
	}
	if v := bearerToken(first(md.Get("authorization"))); v != "" {
		return &Credentials{Value: v, Source: "metadata:authorization"}, nil
	}
	return nil, ErrNoCredentials
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// stripBearer trims and removes an optional "Bearer " prefix.
func stripBearer(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(AuthSchemeBearer) && strings.EqualFold(value[:len(AuthSchemeBearer)], AuthSchemeBearer) {
		value = value[len(AuthSchemeBearer):]
	}
	return strings.TrimSpace(value)
}

// bearerToken returns the token of a "Bearer" Authorization value, or "".
func bearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < len(AuthSchemeBearer) || !strings.EqualFold(value[:len(AuthSchemeBearer)], AuthSchemeBearer) {
		return ""
	}
	return strings.TrimSpace(value[len(AuthSchemeBearer):])
}

// Ensure extractor implements Extractor.
var _ Extractor = (*extractor)(nil)
