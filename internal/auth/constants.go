package auth

// HTTP header constants for authentication.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderXAPIKey is the default header carrying the raw API key.
	HeaderXAPIKey = "X-API-Key"

	// HeaderSignature carries the hex HMAC of a signed request.
	HeaderSignature = "X-Signature"

	// HeaderTimestamp carries the unix timestamp a request was signed at.
	HeaderTimestamp = "X-Timestamp"

	// HeaderWWWAuthenticate is the WWW-Authenticate header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Authentication scheme constants.
const (
	// AuthSchemeBearer is the Bearer authentication scheme prefix.
	AuthSchemeBearer = "Bearer "
)

// DefaultQueryParam is the query parameter consulted when no header is set.
const DefaultQueryParam = "api_key"

// MaxSignedBodyBytes bounds the body read for signature verification.
const MaxSignedBodyBytes = 16 << 20

// Generic failure body. Every rejection gets exactly this.
const (
	UnauthorizedError   = "Invalid or missing API key"
	UnauthorizedMessage = "Please provide a valid API key in the X-API-Key header"
)
