package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements session.Repository on PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// Create persists a new active session with an empty transcript.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO sessions (id, learner_id, mentor_id, kind, topic, scenario, started_at, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`
	_, err := r.conn.Exec(ctx, query,
		s.ID.String(), s.LearnerID, s.MentorID, string(s.Kind), s.Topic, s.Scenario, s.StartedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("session", "Create", shared.ErrAlreadyExists, "session id already exists", err)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID loads a session including its full transcript in conversation order.
func (r *SessionRepository) GetByID(ctx context.Context, id session.ID) (*session.Session, error) {
	query := `
		SELECT id, learner_id, mentor_id, kind, topic, scenario,
		       started_at, ended_at, completed, report, audio_filename
		FROM sessions
		WHERE id = $1
	`

	sess, err := scanSession(r.conn.QueryRow(ctx, query, id.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}

	turns, err := r.loadTranscript(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Transcript = turns

	return sess, nil
}

// AppendExchange appends a user turn and its paired assistant turn in one
// transaction: the session row is locked, the active check and both inserts
// happen atomically.
func (r *SessionRepository) AppendExchange(ctx context.Context, id session.ID, userTurn, assistantTurn session.Turn) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var completed bool
		err := tx.QueryRow(ctx, `SELECT completed FROM sessions WHERE id = $1 FOR UPDATE`, id.String()).Scan(&completed)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrSessionNotFound
			}
			return fmt.Errorf("lock session: %w", err)
		}
		if completed {
			return shared.ErrSessionCompleted
		}

		var nextSeq int
		err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM turns WHERE session_id = $1`, id.String()).Scan(&nextSeq)
		if err != nil {
			return fmt.Errorf("next seq: %w", err)
		}

		insert := `INSERT INTO turns (session_id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, insert, id.String(), nextSeq, string(userTurn.Role), userTurn.Content, userTurn.CreatedAt); err != nil {
			return fmt.Errorf("insert user turn: %w", err)
		}
		if _, err := tx.Exec(ctx, insert, id.String(), nextSeq+1, string(assistantTurn.Role), assistantTurn.Content, assistantTurn.CreatedAt); err != nil {
			return fmt.Errorf("insert assistant turn: %w", err)
		}
		return nil
	})
}

// Finalize performs the atomic completion check-and-set. The row lock makes
// the read of the completed flag and the report write indivisible, so across
// processes at most one caller wins; the loser gets the stored report back.
func (r *SessionRepository) Finalize(ctx context.Context, id session.ID, report session.Report, endedAt time.Time) (*session.FinalizeOutcome, error) {
	var outcome session.FinalizeOutcome

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var completed bool
		var storedReport []byte
		err := tx.QueryRow(ctx, `SELECT completed, report FROM sessions WHERE id = $1 FOR UPDATE`, id.String()).
			Scan(&completed, &storedReport)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrSessionNotFound
			}
			return fmt.Errorf("lock session: %w", err)
		}

		if completed {
			var existing session.Report
			if err := json.Unmarshal(storedReport, &existing); err != nil {
				return fmt.Errorf("decode stored report: %w", err)
			}
			outcome = session.FinalizeOutcome{Report: existing, AlreadyCompleted: true}
			return nil
		}

		encoded, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE sessions SET completed = TRUE, report = $2, ended_at = $3 WHERE id = $1`,
			id.String(), encoded, endedAt,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		outcome = session.FinalizeOutcome{Report: report}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// AttachAudio stores the raw audio blob, replacing any previous recording.
func (r *SessionRepository) AttachAudio(ctx context.Context, id session.ID, data []byte, filename string) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE sessions SET audio = $2, audio_filename = $3 WHERE id = $1`,
		id.String(), data, filename,
	)
	if err != nil {
		return fmt.Errorf("update audio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// GetAudio returns the stored audio blob and filename.
func (r *SessionRepository) GetAudio(ctx context.Context, id session.ID) ([]byte, string, error) {
	var data []byte
	var filename string
	err := r.conn.QueryRow(ctx,
		`SELECT audio, audio_filename FROM sessions WHERE id = $1`,
		id.String(),
	).Scan(&data, &filename)
	if err != nil {
		if IsNoRows(err) {
			return nil, "", shared.ErrSessionNotFound
		}
		return nil, "", fmt.Errorf("select audio: %w", err)
	}
	if len(data) == 0 {
		return nil, "", shared.ErrAudioNotFound
	}
	return data, filename, nil
}

// ListForMentor returns summaries of sessions pinned to the mentor plus
// sessions of learners linked to them, most recent first.
func (r *SessionRepository) ListForMentor(ctx context.Context, mentorID string) ([]session.Summary, error) {
	query := `
		SELECT s.id, s.learner_id, COALESCE(u.display_name, ''), s.kind, s.topic,
		       s.started_at, s.ended_at, s.completed,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id),
		       COALESCE((s.report ->> 'overall_score')::int, 0)
		FROM sessions s
		LEFT JOIN users u ON u.id = s.learner_id
		WHERE s.mentor_id = $1
		   OR s.learner_id IN (SELECT learner_id FROM mentor_links WHERE mentor_id = $1)
		ORDER BY s.started_at DESC
	`

	rows, err := r.conn.Query(ctx, query, mentorID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]session.Summary, 0)
	for rows.Next() {
		var s session.Summary
		var idStr, kind string
		if err := rows.Scan(&idStr, &s.LearnerID, &s.LearnerName, &kind, &s.Topic,
			&s.StartedAt, &s.EndedAt, &s.Completed, &s.TurnCount, &s.OverallScore); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.ID = session.ID(idStr)
		s.Kind = session.Kind(kind)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// loadTranscript loads all turns of a session ordered by seq.
func (r *SessionRepository) loadTranscript(ctx context.Context, id session.ID) ([]session.Turn, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT seq, role, content, created_at FROM turns WHERE session_id = $1 ORDER BY seq`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()

	turns := make([]session.Turn, 0)
	for rows.Next() {
		var t session.Turn
		var role string
		if err := rows.Scan(&t.Seq, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = session.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// scanSession maps a session row. The caller loads the transcript separately.
func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	var idStr, kind string
	var reportJSON []byte

	err := row.Scan(&idStr, &s.LearnerID, &s.MentorID, &kind, &s.Topic, &s.Scenario,
		&s.StartedAt, &s.EndedAt, &s.Completed, &reportJSON, &s.AudioFilename)
	if err != nil {
		return nil, err
	}

	s.ID = session.ID(idStr)
	s.Kind = session.Kind(kind)

	if len(reportJSON) > 0 {
		var report session.Report
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		s.Report = &report
	}

	return &s, nil
}
