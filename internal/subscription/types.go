// Package subscription persists which chats follow which series and
// how far each series has been seen to progress.
package subscription

// Subscription is one (chat, series) row. Episodes is the last episode
// number this bot has already announced for the series; 0 means nothing
// announced yet.
type Subscription struct {
	ChatID   string
	AnimeID  int
	Title    string
	Episodes int
}

// Config controls the sqlite-backed store.
type Config struct {
	Path        string
	BusyTimeout int64 // milliseconds; 0 keeps the driver default
}
