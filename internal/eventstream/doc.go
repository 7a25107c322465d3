// Package eventstream consumes server-sent conversation event streams.
//
// # Overview
//
// A Client hands out Handles, one per (service URL, stream type, id). Many
// UI components can borrow the same Handle without opening duplicate
// connections:
//
//	client := eventstream.NewClient(eventstream.Options{Token: token})
//	h, err := client.CreateOrUpdate(ctx, serviceURL, eventstream.StreamTypeConversation, "conv-1")
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//
//	id := h.AddEventListener("assistant.state.focus", func(ev eventstream.Event) error {
//		// ev.Data is the raw JSON payload
//		return nil
//	})
//	defer h.RemoveEventListener("assistant.state.focus", id)
//
// # Lifetime
//
// Every successful CreateOrUpdate adds a reference; Release removes one. The
// connection closes when the count reaches zero. Client.Close stops every
// stream regardless of outstanding references.
//
// # Delivery
//
// Each Handle reads its stream on a single goroutine and calls listeners in
// registration order. A listener error goes to Options.OnListenerError and
// never stops delivery.
//
// # Reconnection
//
// If an established stream drops, the Handle reconnects after the delay the
// server advertised with "retry:" (or Options.RetryDelay) and sends
// Last-Event-ID. Event ids already delivered are skipped. A failure on the
// very first connection is returned from CreateOrUpdate instead of retried.
package eventstream
