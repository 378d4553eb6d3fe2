// Package transport defines the boundary contracts between the session
// engine and whatever actually moves bytes: an outbound Sender the engine
// calls, and an inbound Receiver the embedding application feeds.
//
// The engine never opens sockets or spawns workers itself; any
// fire-and-forget medium (worker message passing, raw sockets, pub/sub)
// can be plugged in by implementing these two function types.
package transport

// Message is one opaque payload moving through a transport. The session
// engine only ever reads and stamps the correlation field; everything else
// passes through untouched.
type Message = []byte

// Sender dispatches one outbound message. It must not block on the reply;
// a returned error is treated as that send attempt's failure.
type Sender func(msg Message) error

// Receiver consumes one inbound message.
type Receiver func(msg Message)
