package domain

// Initiates decides which side of a participant pair produces the connection
// offer. The participant whose identifier sorts lower in byte order initiates.
//
// This is a protocol invariant, not an implementation detail: both clients of
// a pair must evaluate it independently and reach the same answer regardless
// of which side learned about the other first, so that exactly one offer is
// ever produced per pair. Any alternative client implementation has to use
// the same total order.
func Initiates(local, remote ParticipantID) bool {
	return local < remote
}
