package core

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection abstracts the per-connection outbound queue.
// Owned by the adapter; the registry closes it on eviction.
// TrySend must never block: a full queue returns ErrBackpressure and a
// closed one ErrPeerUnreachable.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
