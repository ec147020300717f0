package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/radiowatch/tetra-monitor/internal/model"
)

// LoadTerminals returns every persisted terminal. Transient activity state
// is not persisted; restored terminals come back quiescent.
func (r *Repository) LoadTerminals(ctx context.Context) ([]model.Terminal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, selected_tg, groups_json, is_local, last_seen
		FROM terminals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Terminal
	for rows.Next() {
		var (
			t          model.Terminal
			status     string
			groupsJSON string
		)
		if err := rows.Scan(&t.ID, &status, &t.SelectedTG, &groupsJSON, &t.IsLocal, &t.LastSeen); err != nil {
			return nil, err
		}
		t.Status = model.TerminalStatus(status)
		t.Groups = decodeGroupsJSON(groupsJSON)
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, rows.Err()
}

// UpsertTerminal writes the persistent slice of one terminal projection.
func (r *Repository) UpsertTerminal(ctx context.Context, view model.TerminalView) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO terminals (id, status, selected_tg, groups_json, is_local, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			selected_tg=excluded.selected_tg,
			groups_json=excluded.groups_json,
			is_local=excluded.is_local,
			last_seen=excluded.last_seen,
			updated_at=excluded.updated_at`,
		view.ID,
		string(view.Status),
		view.SelectedTG,
		encodeGroupsJSON(view.Groups),
		view.IsLocal,
		view.LastSeen,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// AppendCall records one history entry and trims the per-origin log to
// limit rows, oldest first.
func (r *Repository) AppendCall(ctx context.Context, entry model.CallEntry, limit int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO call_history (id, ts, source_id, source_callsign, target_tg, display, is_local, time_slot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		entry.ID,
		entry.Timestamp,
		entry.SourceID,
		entry.SourceCallsign,
		entry.TargetTG,
		entry.Display,
		entry.IsLocal,
		nullableInt(entry.TimeSlot),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM call_history
			WHERE is_local = ? AND id NOT IN (
				SELECT id FROM call_history
				WHERE is_local = ?
				ORDER BY CAST(id AS INTEGER) DESC
				LIMIT ?
			)`,
			entry.IsLocal, entry.IsLocal, limit,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateCallSlot applies the late time-slot correction to one entry.
func (r *Repository) UpdateCallSlot(ctx context.Context, id string, slot int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE call_history SET time_slot = ? WHERE id = ?`, slot, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadHistory returns one origin's log, newest first, capped at limit.
func (r *Repository) LoadHistory(ctx context.Context, local bool, limit int) ([]model.CallEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, source_id, source_callsign, target_tg, display, is_local, time_slot
		FROM call_history
		WHERE is_local = ?
		ORDER BY CAST(id AS INTEGER) DESC
		LIMIT ?`, local, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.CallEntry
	for rows.Next() {
		var (
			entry model.CallEntry
			slot  sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.SourceID, &entry.SourceCallsign,
			&entry.TargetTG, &entry.Display, &entry.IsLocal, &slot); err != nil {
			return nil, err
		}
		if slot.Valid {
			value := int(slot.Int64)
			entry.TimeSlot = &value
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// LastEntryID reports the highest numeric history id, 0 when empty.
func (r *Repository) LastEntryID(ctx context.Context) (int, error) {
	var max sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(CAST(id AS INTEGER)) FROM call_history`).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

func encodeGroupsJSON(groups []string) string {
	if len(groups) == 0 {
		return "[]"
	}
	body, err := json.Marshal(groups)
	if err != nil {
		return "[]"
	}
	return string(body)
}

func decodeGroupsJSON(v string) []string {
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
