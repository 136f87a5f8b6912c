package core

// Message is the domain model for a chat message. Messages are append-only
// per room; the only mutations are delete (removal) and edit-via-refetch.
type Message struct {
	ID        string
	Room      string
	Sender    string
	Text      string
	Timestamp int64
}
