// Package workbench implements the backend service behind the conversation
// panels.
//
// # Overview
//
// The service owns one event stream per conversation. Events are recorded in
// the SQLite ledger (package store) and then fanned out to live subscribers
// (package conversation). Panel frontends follow a conversation over
// server-sent events; agents and tools publish events over plain JSON POSTs.
//
// # HTTP API
//
//	GET  /api/conversations/{id}/events
//	POST /api/conversations/{id}/events
//	POST /api/conversations/{id}/assistants/{assistant_id}/states/{state_id}/focus
//	GET  /api/conversations/{id}/history?limit=N&cursor=C
//	GET  /health
//	GET  /health/ready
//	GET  /docs
//
// The events stream replays ledger entries newer than the Last-Event-ID
// header (or last_event_id query parameter), then follows live events. A
// retry field is sent on connect and keepalive comments on an interval. A
// subscriber that falls behind is disconnected and recovers by reconnecting
// with its last event id.
//
// When auth.jwt_secret is configured, /api routes require a bearer token
// carrying the subscribe scope (GET) or the publish scope (POST).
//
// # gRPC
//
// The standard grpc.health.v1.Health service is served on server.grpc_addr
// and reports SERVING between Run binding its listeners and Shutdown.
//
// # Publisher
//
// Publisher is the client side of the POST and history routes, used by the
// example agent.
package workbench
