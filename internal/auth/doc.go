// Package auth authenticates requests to the workbench HTTP API.
//
// # Tokens
//
// Clients present HS256 JWTs signed with auth.jwt_secret. A token names a
// subject (sub) and the scopes it was granted:
//
//   - subscribe: open conversation event streams and read history
//   - publish: publish events to a conversation
//
// Tokens are minted with the service binary:
//
//	workbench-service token --sub example-agent --scope publish
//
// # HTTP Middleware
//
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(api))
//	mux.Handle("POST /api/...", auth.RequireScope(auth.ScopePublish)(h))
//
// HTTPAuthMiddleware puts the *Principal in the request context; handlers
// read it back with FromContext. Stream requests may pass the token as
// access_token in the query string.
//
// When no secret is configured the service skips this middleware entirely.
package auth
