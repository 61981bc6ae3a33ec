package model

import "time"

type Order struct {
	ID          int64     `json:"-"`
	PublicID    string    `json:"id"`
	PrincipalID int64     `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
