package domain

import "time"

// Idempotency records the verdict returned for a (client_id, route, key)
// tuple so a retried POST replays the original answer instead of invoking the
// model again. The verdict is stored whole, Error verdicts included, because
// history never keeps those.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	ClientID  string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_client_route_key,priority:1"`
	Route     string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_client_route_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_client_route_key,priority:3"`
	Verdict   Verdict   `gorm:"type:text;not null;serializer:json"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
