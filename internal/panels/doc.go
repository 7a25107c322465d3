// Package panels connects conversation event streams to the side-panel view state.
//
// # Overview
//
// A Controller is mounted for one conversation at a time. It borrows the
// conversation's stream from the event stream client, listens for
// "assistant.state.focus", and turns each focus event into a transition that
// opens the assistant panel on the named assistant state:
//
//	ctrl := panels.New(panels.Options{
//		ServiceURL: cfg.Workbench.ServiceURL,
//		Streams:    streamClient,
//		View:       store,
//	})
//	if err := ctrl.OnActivate(ctx, "conv-1"); err != nil {
//		return err
//	}
//	defer ctrl.OnDeactivate()
//
// # User Actions
//
//   - ActivateConversationPanel: {open: true, mode: conversation}
//   - ActivateAssistantPanel: {open: true, mode: assistant}, selections kept
//   - DismissPanel: {open: false}, everything else kept
//
// The controller never checks whether an action makes sense. The
// CanActivate* predicates are for the UI to grey out buttons.
//
// # Subscription Lifecycle
//
// OnActivate returns immediately; acquisition runs in the background and
// registers the focus listener in the same step, so no event can arrive
// before the listener exists. Each activation remembers the handle it
// acquired, and teardown always targets that handle.
//
// Deactivating while acquisition is still pending cancels it. If the
// stream client hands back a handle anyway, the controller releases it
// without registering anything.
//
// # Errors
//
// Malformed focus payloads produce a *ParseError. When the event came from
// the stream, the error surfaces through the stream client's listener error
// hook and no transition happens.
package panels
