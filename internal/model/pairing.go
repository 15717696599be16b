package model

import "time"

type PairingCode struct {
	Code        string
	SessionID   string
	PhoneNumber string
	CreatedAt   time.Time
}
