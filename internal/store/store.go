// Package store is the Postgres-backed implementation of
// session.Repository, following the same raw database/sql + lib/pq style
// as the rest of this codebase's storage layer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
	"github.com/dlalloyd/adaptive-kernel/internal/session"
)

// Store is the Postgres-backed session.Repository.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection with a ping.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return db, nil
}

// New wires a Store to an already-open *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ session.Repository = (*Store)(nil)

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get user: %v", err)
	}
	return &u, nil
}

// CreateUser registers a new learner with a bcrypt password hash already
// computed by the caller.
func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string) (models.User, error) {
	u := models.User{ID: newID("user"), Name: name, Email: email, PasswordHash: passwordHash}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Name, u.Email, u.PasswordHash)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return models.User{}, apperr.Conflict("email %q already registered", email)
		}
		return models.User{}, apperr.Internal("create user: %v", err)
	}
	return u, nil
}

// GetUserByEmail looks up a learner by email, including the password hash,
// for use by the login flow.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user with email %q not found", email)
	}
	if err != nil {
		return nil, apperr.Internal("get user by email: %v", err)
	}
	return &u, nil
}

func (s *Store) GetQuiz(ctx context.Context, id string) (*models.Quiz, error) {
	var q models.Quiz
	err := s.db.QueryRowContext(ctx, `SELECT id, title FROM quizzes WHERE id = $1`, id).Scan(&q.ID, &q.Title)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("quiz %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get quiz: %v", err)
	}
	return &q, nil
}

// CreateQuiz inserts a new quiz. Used by internal/seed, not by the
// session engine — content authoring otherwise has no writer in this
// repository.
func (s *Store) CreateQuiz(ctx context.Context, title string) (models.Quiz, error) {
	q := models.Quiz{ID: newID("quiz"), Title: title}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO quizzes (id, title) VALUES ($1, $2)`, q.ID, q.Title); err != nil {
		return models.Quiz{}, apperr.Internal("create quiz: %v", err)
	}
	return q, nil
}

// UpsertKCParams writes or replaces one knowledge component's BKT
// parameters for a quiz.
func (s *Store) UpsertKCParams(ctx context.Context, quizID, kcID string, params models.KCParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kc_params (quiz_id, kc_id, p_l0, p_t, p_s, p_g) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (quiz_id, kc_id) DO UPDATE SET p_l0 = $3, p_t = $4, p_s = $5, p_g = $6`,
		quizID, kcID, params.PL0, params.PT, params.PS, params.PG)
	if err != nil {
		return apperr.Internal("upsert kc params: %v", err)
	}
	return nil
}

// CreateQuestion inserts a calibrated item into a quiz's bank.
func (s *Store) CreateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return models.Question{}, apperr.Internal("encode options: %v", err)
	}
	q.ID = newID("question")
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, quiz_id, "order", stem, options, a, b, c, bloom, kc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		q.ID, q.QuizID, q.Order, q.Stem, optionsJSON, q.A, q.B, q.C, q.Bloom, q.KC)
	if err != nil {
		return models.Question{}, apperr.Internal("create question: %v", err)
	}
	return q, nil
}

func (s *Store) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, quiz_id, "order", stem, options, a, b, c, bloom, kc FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get question: %v", err)
	}
	return q, nil
}

func (s *Store) ListQuestionsForQuiz(ctx context.Context, quizID string) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_id, "order", stem, options, a, b, c, bloom, kc
		 FROM questions WHERE quiz_id = $1 ORDER BY "order" ASC`, quizID)
	if err != nil {
		return nil, apperr.Internal("list questions: %v", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, apperr.Internal("scan question: %v", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s *Store) GetKCCatalogue(ctx context.Context, quizID string) (map[string]models.KCParams, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kc_id, p_l0, p_t, p_s, p_g FROM kc_params WHERE quiz_id = $1`, quizID)
	if err != nil {
		return nil, apperr.Internal("get kc catalogue: %v", err)
	}
	defer rows.Close()

	out := map[string]models.KCParams{}
	for rows.Next() {
		var kcID string
		var params models.KCParams
		if err := rows.Scan(&kcID, &params.PL0, &params.PT, &params.PS, &params.PG); err != nil {
			return nil, apperr.Internal("scan kc params: %v", err)
		}
		out[kcID] = params
	}
	return out, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, []models.Interaction, error) {
	var sess models.Session
	var completedAt sql.NullTime
	var kcStatesRaw []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, quiz_id, condition, started_at, completed_at, theta, theta_sd, kc_states
		 FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.QuizID, &sess.Condition, &sess.StartedAt, &completedAt,
		&sess.Theta, &sess.ThetaSD, &kcStatesRaw)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperr.Internal("get session: %v", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	if err := json.Unmarshal(kcStatesRaw, &sess.KCStates); err != nil {
		return nil, nil, apperr.Internal("decode kc_states: %v", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question_id, selected_answer, is_correct, response_time_ms,
		        theta_before, theta_after, p_learned_before, p_learned_after, created_at
		 FROM interactions WHERE session_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, nil, apperr.Internal("list interactions: %v", err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(&in.ID, &in.SessionID, &in.QuestionID, &in.SelectedAnswer, &in.IsCorrect,
			&in.ResponseTimeMs, &in.ThetaBefore, &in.ThetaAfter, &in.PLearnedBefore, &in.PLearnedAfter,
			&in.CreatedAt); err != nil {
			return nil, nil, apperr.Internal("scan interaction: %v", err)
		}
		interactions = append(interactions, in)
	}
	return &sess, interactions, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, draft models.Session) (models.Session, error) {
	kcStates, err := json.Marshal(draft.KCStates)
	if err != nil {
		return models.Session{}, apperr.Internal("encode kc_states: %v", err)
	}

	draft.ID = newID("session")
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, quiz_id, condition, started_at, theta, theta_sd, kc_states)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.ID, draft.UserID, draft.QuizID, draft.Condition, draft.StartedAt, draft.Theta, draft.ThetaSD, kcStates)
	if err != nil {
		return models.Session{}, apperr.Internal("insert session: %v", err)
	}
	return draft, nil
}

// RecordAnswerAtomically writes the interaction and the session snapshot
// in one transaction under row-level locking, satisfying the no-
// duplicate-answer invariant under concurrent requests.
func (s *Store) RecordAnswerAtomically(ctx context.Context, sessionID string, interaction models.Interaction, update session.SessionUpdate) (models.Interaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Interaction{}, apperr.Internal("begin tx: %v", err)
	}
	defer tx.Rollback()

	var completedAt sql.NullTime
	var kcStatesRaw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT completed_at, kc_states FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&completedAt, &kcStatesRaw)
	if err == sql.ErrNoRows {
		return models.Interaction{}, apperr.NotFound("session %q not found", sessionID)
	}
	if err != nil {
		return models.Interaction{}, apperr.Internal("lock session: %v", err)
	}
	if completedAt.Valid {
		return models.Interaction{}, apperr.Conflict("session %q already completed", sessionID)
	}

	var dup int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE session_id = $1 AND question_id = $2`,
		sessionID, interaction.QuestionID).Scan(&dup); err != nil {
		return models.Interaction{}, apperr.Internal("check duplicate answer: %v", err)
	}
	if dup > 0 {
		return models.Interaction{}, apperr.Conflict("question %q already answered in session %q", interaction.QuestionID, sessionID)
	}

	newKCStates, err := applyKCStateUpdate(kcStatesRaw, update)
	if err != nil {
		return models.Interaction{}, apperr.Internal("patch kc_states: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET theta = $1, theta_sd = $2, kc_states = $3 WHERE id = $4`,
		update.Theta, update.ThetaSD, newKCStates, sessionID); err != nil {
		return models.Interaction{}, apperr.Internal("update session: %v", err)
	}

	interaction.ID = newID("interaction")
	interaction.SessionID = sessionID
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO interactions
		   (id, session_id, question_id, selected_answer, is_correct, response_time_ms,
		    theta_before, theta_after, p_learned_before, p_learned_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		interaction.ID, interaction.SessionID, interaction.QuestionID, interaction.SelectedAnswer,
		interaction.IsCorrect, interaction.ResponseTimeMs, interaction.ThetaBefore, interaction.ThetaAfter,
		interaction.PLearnedBefore, interaction.PLearnedAfter, interaction.CreatedAt); err != nil {
		return models.Interaction{}, apperr.Internal("insert interaction: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Interaction{}, apperr.Internal("commit answer: %v", err)
	}

	log.Printf("[store] recorded answer session=%s question=%s correct=%v", sessionID, interaction.QuestionID, interaction.IsCorrect)
	return interaction, nil
}

// CompleteSession marks a session terminal. The WHERE clause makes the
// write idempotent under a racing second completion attempt; the
// returned snapshot always reflects whichever caller won.
func (s *Store) CompleteSession(ctx context.Context, sessionID string, completedAt time.Time) (models.Session, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET completed_at = $1 WHERE id = $2 AND completed_at IS NULL`,
		completedAt, sessionID); err != nil {
		return models.Session{}, apperr.Internal("complete session: %v", err)
	}

	sess, _, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if sess == nil {
		return models.Session{}, apperr.NotFound("session %q not found", sessionID)
	}
	return *sess, nil
}

// applyKCStateUpdate patches one KC entry into the session's raw kc_states
// JSON without decoding the whole blob when the update names a touched KC
// (update.KCStates is then ignored). When no KC is named it falls back to
// a full rewrite from update.KCStates, or leaves raw unchanged if that map
// is nil.
func applyKCStateUpdate(raw []byte, update session.SessionUpdate) ([]byte, error) {
	if update.TouchedKC == "" || update.TouchedState == nil {
		if update.KCStates == nil {
			return raw, nil
		}
		return json.Marshal(update.KCStates)
	}

	stateJSON, err := json.Marshal(update.TouchedState)
	if err != nil {
		return nil, err
	}

	patched, err := sjson.SetRawBytes(raw, update.TouchedKC, stateJSON)
	if err != nil {
		return nil, err
	}

	if !gjson.GetBytes(patched, update.TouchedKC+".is_mastered").Exists() {
		return nil, fmt.Errorf("patched kc_states missing %q after set", update.TouchedKC)
	}
	return patched, nil
}

func scanQuestion(row interface {
	Scan(dest ...any) error
}) (*models.Question, error) {
	var q models.Question
	var optionsRaw []byte
	if err := row.Scan(&q.ID, &q.QuizID, &q.Order, &q.Stem, &optionsRaw, &q.A, &q.B, &q.C, &q.Bloom, &q.KC); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return &q, nil
}

var idCounter int64

// newID mints a short, sortable identifier. Production deployments may
// swap this for a UUID generator; the kernel only requires ids to be
// opaque and unique.
func newID(prefix string) string {
	idCounter++
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idCounter)
}
