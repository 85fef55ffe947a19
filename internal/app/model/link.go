package model

import "time"

// Link describes one short-link entry: the key, the target it points at and
// its usage metadata. Key and URL never change after creation; swapping the
// target means deleting the entry and adding a new one.
type Link struct {
	Key      string    `db:"key" gorm:"primaryKey;size:64"`
	URL      string    `db:"link" gorm:"column:link;type:text;not null"`
	Created  time.Time `db:"created" gorm:"not null"`
	LastUsed time.Time `db:"last_used" gorm:"not null"`
	Used     int64     `db:"used" gorm:"not null;default:0"`
}
