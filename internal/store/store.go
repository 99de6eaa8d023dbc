// Package store persists the rows the gateway shares with the rest of the
// pipeline: filtered meeting transcripts (read side), chat sessions keyed by
// user and channel, client status, generated meeting summaries, and a
// processing log. SQLite is used as a plain row store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"alphamachine/gateway/internal/domain"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id           TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	channel_id           TEXT NOT NULL,
	previous_response_id TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transcripts (
	id               TEXT PRIMARY KEY,
	meeting_date     TEXT NOT NULL,
	participants     TEXT NOT NULL DEFAULT '[]',
	project_tags     TEXT NOT NULL DEFAULT '[]',
	filtered_content TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);

CREATE TABLE IF NOT EXISTS client_status (
	client_name TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meeting_summaries (
	id           TEXT PRIMARY KEY,
	meeting_date TEXT NOT NULL,
	summary      TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_logs (
	id          TEXT PRIMARY KEY,
	flow        TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func SessionID(userID, channelID string) string {
	return userID + "_" + channelID
}

// GetChatSession returns the stored session for the pair, reporting absence
// through the bool rather than an error.
func (s *Store) GetChatSession(ctx context.Context, userID, channelID string) (domain.SessionInfo, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, channel_id, previous_response_id, updated_at
		 FROM chat_sessions WHERE session_id = ?`, SessionID(userID, channelID))

	var info domain.SessionInfo
	err := row.Scan(&info.SessionID, &info.UserID, &info.ChannelID, &info.PreviousResponseID, &info.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionInfo{}, false, nil
	}
	if err != nil {
		return domain.SessionInfo{}, false, fmt.Errorf("read chat session: %w", err)
	}
	info.HasConversation = info.PreviousResponseID != ""
	return info, true, nil
}

// PutChatSession upserts the continuation token for the pair; at most one live
// row exists per session id.
func (s *Store) PutChatSession(ctx context.Context, userID, channelID, responseID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, user_id, channel_id, previous_response_id, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   previous_response_id = excluded.previous_response_id,
		   updated_at = excluded.updated_at`,
		SessionID(userID, channelID), userID, channelID, responseID, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store chat session: %w", err)
	}
	return nil
}

// DeleteChatSession is idempotent: clearing an absent row is not an error.
func (s *Store) DeleteChatSession(ctx context.Context, userID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE session_id = ?`, SessionID(userID, channelID))
	if err != nil {
		return fmt.Errorf("clear chat session: %w", err)
	}
	return nil
}

// RecentTranscripts returns the newest filtered transcripts created since the
// given time, most recent first.
func (s *Store) RecentTranscripts(ctx context.Context, since time.Time, limit int) ([]domain.TranscriptRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_date, participants, project_tags, filtered_content, created_at
		 FROM transcripts WHERE created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`,
		since.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscriptRecord
	for rows.Next() {
		var rec domain.TranscriptRecord
		var participants, tags string
		if err := rows.Scan(&rec.ID, &rec.MeetingDate, &participants, &tags, &rec.FilteredContent, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		rec.Participants = decodeStringList(participants)
		rec.ProjectTags = decodeStringList(tags)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertTranscript stores a filtered transcript row. The gateway itself only
// reads transcripts; ingestion flows and tests use this.
func (s *Store) InsertTranscript(ctx context.Context, rec domain.TranscriptRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	participants, _ := json.Marshal(orEmpty(rec.Participants))
	tags, _ := json.Marshal(orEmpty(rec.ProjectTags))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, meeting_date, participants, project_tags, filtered_content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MeetingDate, string(participants), string(tags), rec.FilteredContent, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("store transcript: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) GetClientStatus(ctx context.Context, clientName string) (*domain.ClientStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT client_name, status, summary, updated_at FROM client_status WHERE client_name = ?`, clientName)

	var status domain.ClientStatus
	err := row.Scan(&status.ClientName, &status.Status, &status.Summary, &status.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client status: %w", err)
	}
	return &status, nil
}

func (s *Store) PutClientStatus(ctx context.Context, status domain.ClientStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_status (client_name, status, summary, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(client_name) DO UPDATE SET
		   status = excluded.status,
		   summary = excluded.summary,
		   updated_at = excluded.updated_at`,
		status.ClientName, status.Status, status.Summary, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store client status: %w", err)
	}
	return nil
}

func (s *Store) StoreMeetingSummary(ctx context.Context, meetingDate, summary string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meeting_summaries (id, meeting_date, summary, created_at) VALUES (?, ?, ?, ?)`,
		id, meetingDate, summary, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("store meeting summary: %w", err)
	}
	return id, nil
}

func (s *Store) InsertProcessingLog(ctx context.Context, flow, status, detail string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_logs (id, flow, status, detail, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), flow, status, detail, duration.Milliseconds(), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store processing log: %w", err)
	}
	return nil
}

func decodeStringList(raw string) []string {
	var out []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
