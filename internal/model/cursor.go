package model

import "time"

// Cursor はフィード走査位置（直前ページ最終行の published_at, id）を表す。
type Cursor struct {
	PublishedAt time.Time
	ID          string
}
