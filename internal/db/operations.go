package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/orrn/labelgate/internal/core"
)

type DispatchOperations struct{}

// PayloadDigest returns the blake3 digest stored in place of the payload.
func PayloadDigest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// RecordDispatch implements core.Recorder. A job is written once when accepted
// or finished, and updated in place when a background job completes.
func (o *DispatchOperations) RecordDispatch(ctx context.Context, outcome *core.DispatchOutcome) error {
	job := outcome.Job
	r := &DispatchRecord{
		ID:            job.ID,
		Transport:     job.Kind.String(),
		Target:        outcome.Target(),
		PayloadBytes:  len(job.Payload),
		PayloadDigest: PayloadDigest(job.Payload),
		Background:    outcome.Background,
		Status:        string(outcome.Status),
		CreatedAt:     outcome.StartedAt,
	}
	if outcome.Err != nil {
		r.Status = DispatchFailed
		r.ErrorKind = outcome.Err.Kind.String()
		r.ErrorMessage = outcome.Err.Error()
	}
	if !outcome.FinishedAt.IsZero() {
		r.CompletedAt = sql.NullTime{Time: outcome.FinishedAt, Valid: true}
	}
	return o.Upsert(ctx, r)
}

func (o *DispatchOperations) Upsert(ctx context.Context, r *DispatchRecord) error {
	_, err := GetDB().ExecContext(ctx, UpsertDispatch,
		r.ID, r.Transport, r.Target, r.PayloadBytes, r.PayloadDigest, r.Background,
		r.Status, r.ErrorKind, r.ErrorMessage, r.CreatedAt.UTC(), nullTimeUTC(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to record dispatch %s: %w", r.ID, err)
	}
	return nil
}

func (o *DispatchOperations) GetDispatch(ctx context.Context, id string) (*DispatchRecord, error) {
	r, err := scanDispatch(GetDB().QueryRowContext(ctx, GetDispatchByID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return r, nil
}

func (o *DispatchOperations) ListDispatches(ctx context.Context, filter DispatchFilter) ([]*DispatchRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Transport != "" {
		conditions = append(conditions, "transport = ?")
		args = append(args, filter.Transport)
	}

	query := ListDispatchesBase
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	records := []*DispatchRecord{}
	for rows.Next() {
		r, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (o *DispatchOperations) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := GetDB().QueryRowContext(ctx, CountDispatchesByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDispatch(s scanner) (*DispatchRecord, error) {
	r := &DispatchRecord{}
	err := s.Scan(&r.ID, &r.Transport, &r.Target, &r.PayloadBytes, &r.PayloadDigest, &r.Background,
		&r.Status, &r.ErrorKind, &r.ErrorMessage, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func nullTimeUTC(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return t.Time.UTC()
}

type AuditOperations struct{}

func (o *AuditOperations) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	result, err := GetDB().ExecContext(ctx, InsertAuditLog, log.Action, log.IPAddress, log.Details)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit log id: %w", err)
	}
	log.ID = id
	return nil
}

// ListAuditLogs returns the newest entries first. An empty action matches every entry.
func (o *AuditOperations) ListAuditLogs(ctx context.Context, action string, limit int) ([]*AuditLog, error) {
	rows, err := GetDB().QueryContext(ctx, ListAuditLogsByAction, action, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		log := &AuditLog{}
		if err := rows.Scan(&log.ID, &log.Action, &log.IPAddress, &log.Details, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

var (
	Dispatches = &DispatchOperations{}
	Audit      = &AuditOperations{}
)
