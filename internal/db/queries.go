package db

const (
	UpsertDispatch = `
		INSERT INTO dispatch_log (id, transport, target, payload_bytes, payload_digest, background, status, error_kind, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			completed_at = excluded.completed_at
	`

	GetDispatchByID = `
		SELECT id, transport, target, payload_bytes, payload_digest, background, status, error_kind, error_message, created_at, completed_at
		FROM dispatch_log WHERE id = ?
	`

	ListDispatchesBase = `
		SELECT id, transport, target, payload_bytes, payload_digest, background, status, error_kind, error_message, created_at, completed_at
		FROM dispatch_log
	`

	CountDispatchesByStatus = `SELECT COUNT(*) FROM dispatch_log WHERE status = ?`

	InsertAuditLog = `
		INSERT INTO audit_log (action, ip_address, details)
		VALUES (?, ?, ?)
	`

	ListAuditLogsByAction = `
		SELECT id, action, ip_address, details, created_at
		FROM audit_log WHERE (? = '' OR action = ?) ORDER BY id DESC LIMIT ?
	`
)
