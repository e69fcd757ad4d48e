package models

import "time"

// Instance statuses. Deleted is terminal and only ever appears in responses;
// deleted rows are removed from the registry.
const (
	StatusAvailable = "available"
	StatusDeleted   = "deleted"
)

// DBInstance is one emulated managed-database resource. Rows survive process
// restarts; the in-memory port set is rebuilt from them on startup.
type DBInstance struct {
	ID             string `gorm:"primaryKey"`
	Engine         string
	MasterUsername string
	DBName         string
	Port           int
	Status         string
	LocalPath      string // set only when the file fallback provisioned it
	CreatedAt      time.Time
}
