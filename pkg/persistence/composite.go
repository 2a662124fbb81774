package persistence

// Composite keeps scraped posts and events in different stores, e.g. posts
// in Postgres and events in the MySQL calendar database.
type Composite struct {
	PostStore
	EventStore
}

func NewComposite(posts PostStore, events EventStore) *Composite {
	return &Composite{PostStore: posts, EventStore: events}
}
