// Package conversation records conversation events and fans them out to live streams.
//
// # Overview
//
// Every event published to a conversation goes through the Service:
//
//	svc := conversation.NewService(store, conversation.NewBroadcaster(logger), logger)
//	err := svc.Publish(ctx, &store.Event{ConversationID: "conv-1", Name: "assistant.state.focus", Data: payload})
//
// Publish records the event in the ledger first and broadcasts it second.
// If the save fails, nobody sees the event.
//
// # Following a Conversation
//
// Stream handlers call Follow with the client's Last-Event-ID:
//
//	backlog, live, err := svc.Follow(ctx, "conv-1", lastEventID, 100)
//
// The subscription is opened before the ledger is read, and live events
// already present in the backlog are filtered by seq. Writing the backlog
// and then draining live therefore yields every event once, in order.
//
// # Slow Subscribers
//
// The Broadcaster never blocks a publisher. A subscriber whose buffer is
// full is disconnected and its channel closed; the stream client
// reconnects with Last-Event-ID and the backlog fills the gap.
package conversation
