// Package middleware provides the net/http middleware of the authcore HTTP
// surface.
//
// # Guards
//
//   - [Guard] requires a valid access token from the accessToken cookie or an
//     Authorization bearer header and stores the [authcore.Principal] in the
//     request context.
//   - [Optional] attaches the principal when a valid token is present and
//     otherwise passes the request through unchanged.
//   - [RequireRole] must run after [Guard] and rejects principals without one
//     of the listed roles.
//
// # Request plumbing
//
//   - [RequestID], [ClientInfo], [Logging] and [Recovery] tag, describe, log
//     and protect each request.
//   - [RateLimit] applies a Redis fixed-window budget per client IP and
//     answers 429 with Retry-After.
//
// # Architecture boundaries
//
// Guards delegate every token decision to Engine.Authenticate. Rejections are
// handed to an [ErrorHandler] so the route layer keeps a single error
// rendering boundary.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Log tokens, cookies or request bodies.
//   - Swallow authentication errors outside [Optional].
package middleware
