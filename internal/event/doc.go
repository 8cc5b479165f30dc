/*
Package event provides a type-safe pub/sub event system for extraction sessions.

Publishers (the session manager and the generation orchestrator) emit events and
subscribers (the SSE relay, the CLI progress printer) react to them without direct
dependencies.

# Event Types

Session Events:
  - session.created: extraction session created
  - session.updated: status advanced or content attached
  - session.completed: session reached complete
  - session.failed: session reached failed
  - session.retried: failed session restarted by a permitted retry
  - session.expired: session removed by the expiry sweep

Generation Events:
  - generation.progress: progress record received from the generation stream

Interaction Events:
  - interaction.recorded: user interaction telemetry appended

# Basic Usage

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.SessionFailed, func(e event.Event) {
		data := e.Data.(event.SessionData)
		logging.Info().Str("sessionID", data.Info.ID).Msg("failed")
	})
	defer unsubscribe()

	bus.PublishSync(event.Event{
		Type: event.SessionFailed,
		Data: event.SessionData{Info: session},
	})

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the publisher's
goroutine. Subscribers MUST complete quickly, use non-blocking channel sends, and
never publish from within a subscriber.

# Streams

Every event is also mirrored as JSON onto the watermill gochannel topic
"lessonpipe.events". Stream subscribes to it with a context, which is how the
HTTP SSE relay follows the bus:

	events, err := bus.Stream(r.Context(), 64)
	for env := range events {
		// env.ID is the watermill message UUID
	}

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()
*/
package event
