package model

import "time"

// Category is a spending or income category. Categories are created lazily
// the first time a transaction references them by name.
type Category struct {
	CreatedAt time.Time
	Name      string
	ID        int
	IsActive  bool
}

// Tag is a free-form label attached to transactions.
type Tag struct {
	CreatedAt time.Time
	Name      string
	ID        int
}
