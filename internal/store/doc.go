// Package store provides persistent storage for the workbench service using SQLite.
//
// # Architecture
//
// The Store interface covers two concerns:
//
//   - The conversation event ledger: every event published to a
//     conversation stream, in publish order
//   - Panel state: the last panel a frontend client showed, keyed by client id
//
// SQLiteStore implements it on modernc.org/sqlite (pure Go, no cgo).
// MockStore is an in-memory implementation for tests.
//
// # Ledger
//
// Events are stored in conversation_events with an autoincrement seq that
// defines replay order. Ids are unique across the ledger; the stream
// endpoint sends them as SSE ids so reconnecting clients can send
// Last-Event-ID and receive only what they missed:
//
//	events, err := s.GetEventsAfter(ctx, "conv-1", lastEventID, 100)
//
// An id the ledger does not know (or one from another conversation) replays
// the conversation from the start. When more events are pending than the
// limit allows, the newest ones are returned.
//
// History pages use an opaque cursor:
//
//	page, err := s.GetEvents(ctx, store.GetEventsParams{ConversationID: "conv-1", Limit: 50})
//	next, err := s.GetEvents(ctx, store.GetEventsParams{ConversationID: "conv-1", Cursor: page.NextCursor})
//
// # Debug Metadata
//
// Event.Debug is stored as a JSON object in the debug column and omitted
// when empty.
//
// # Configuration
//
// WAL mode is enabled for concurrent readers, and a busy timeout lets
// concurrent writers wait rather than fail.
package store
