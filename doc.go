// Package console is a real-time signal routing engine.
//
// # Concept
//
// The engine turns user-editable chains of audio and MIDI processors into a
// computation executed once per audio I/O callback, a cycle. The chain can
// be edited from any goroutine while the engine is running:
//
//	Route - a mixer channel strip, owns an ordered chain of Processors;
//	Processor - a unit with a negotiable channel count contract;
//	Delivery - a Processor that writes signal to ports or other routes;
//	Track - a Route bound to a disk stream.
//
// Every Route keeps exactly one Amp, one PeakMeter and one main Delivery.
// When the chain changes, the Route negotiates channel counts from its input
// ports through every stage. If any stage can't accept its input, the change
// is rolled back and NegotiationError is returned.
//
// # Real-time constraints
//
// The real-time goroutine never blocks. It takes a non-blocking read lock of
// every chain and emits silence for the cycle if the chain is being edited.
// Simple state like gain, mute and solo is stored in atomics. Changes that
// must happen on a cycle boundary are pushed through a mutable.Queue.
// Notifications leave the real-time goroutine through an event.Bus, where
// every consumer owns a buffered channel.
//
// # Context
//
// All entities of a session share a Context. It replaces process-wide
// registries: it holds the port registry, solo policy, scratch buffers for
// sends and the event bus. Its lifetime is the session lifetime.
//
//	ctx := console.NewContext(48000, 512)
//	r, err := route.New(ctx, "bass",
//		route.WithInputs(signal.AudioChannels(1)),
//		route.WithOutputs(signal.AudioChannels(2)),
//	)
package console
