package models

import "time"

// Staff is a service agent able to receive token assignments. Records are
// provisioned administratively; the scheduling core treats them as read-only.
type Staff struct {
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
