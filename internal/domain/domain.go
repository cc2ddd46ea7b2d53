package domain

import "time"

type Feed struct {
	URL   string
	Title string
}

type StoredFeed struct {
	ID    int64
	URL   string
	Title string
}

// Item is one entry of a feed. Body holds plain text, not HTML.
type Item struct {
	ID          int64
	FeedID      int64
	URL         string
	Title       string
	Body        string
	PublishedAt time.Time
}

// DigestEntry is a summarized item waiting to be delivered.
type DigestEntry struct {
	ItemID    int64
	Title     string
	URL       string
	Summary   string
	FeedID    int64
	FeedTitle string
	FeedURL   string
}
