package db

import (
	"database/sql"
	"time"
)

const (
	DispatchAccepted = "accepted"
	DispatchSent     = "sent"
	DispatchFailed   = "failed"
)

// DispatchRecord is one row of the dispatch audit trail. Only payload metadata
// is kept, never the payload itself.
type DispatchRecord struct {
	ID            string       `json:"id"`
	Transport     string       `json:"transport"`
	Target        string       `json:"target"`
	PayloadBytes  int          `json:"payload_bytes"`
	PayloadDigest string       `json:"payload_digest"`
	Background    bool         `json:"background"`
	Status        string       `json:"status"`
	ErrorKind     string       `json:"error_kind,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   sql.NullTime `json:"-"`
}

type DispatchFilter struct {
	Status    string
	Transport string
	Limit     int
	Offset    int
}

type AuditLog struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
