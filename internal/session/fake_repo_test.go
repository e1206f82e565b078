package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
)

// fakeRepo is an in-memory Repository used only by this package's tests.
// It serialises writes with a mutex to stand in for the transactional
// isolation a real store provides.
type fakeRepo struct {
	mu sync.Mutex

	users     map[string]models.User
	quizzes   map[string]models.Quiz
	questions map[string]models.Question
	bank      map[string][]string // quizID -> question ids, authored order
	catalogue map[string]map[string]models.KCParams

	sessions     map[string]models.Session
	interactions map[string][]models.Interaction

	nextID int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:        map[string]models.User{},
		quizzes:      map[string]models.Quiz{},
		questions:    map[string]models.Question{},
		bank:         map[string][]string{},
		catalogue:    map[string]map[string]models.KCParams{},
		sessions:     map[string]models.Session{},
		interactions: map[string][]models.Interaction{},
	}
}

func (r *fakeRepo) newID(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *fakeRepo) seedUKGeography() (userID, quizID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID = "user-1"
	quizID = "quiz-uk-geo"
	r.users[userID] = models.User{ID: userID, Name: "Test Learner"}
	r.quizzes[quizID] = models.Quiz{ID: quizID, Title: "UK Geography"}
	r.catalogue[quizID] = map[string]models.KCParams{
		"UK_capitals": {PL0: 0.60, PT: 0.25, PS: 0.08, PG: 0.25},
	}

	questions := []models.Question{
		{ID: "q-001", QuizID: quizID, Order: 1, A: 1.20, B: -0.80, C: 0.25, Bloom: 1, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", IsCorrect: true}, {Label: "B"}, {Label: "C"}, {Label: "D"}}},
		{ID: "q-002", QuizID: quizID, Order: 2, A: 1.20, B: -1.50, C: 0.25, Bloom: 1, KC: "UK_capitals",
			Options: []models.Option{{Label: "A"}, {Label: "B", IsCorrect: true}, {Label: "C"}, {Label: "D"}}},
		{ID: "q-003", QuizID: quizID, Order: 3, A: 1.20, B: -0.60, C: 0.25, Bloom: 2, KC: "UK_capitals",
			Options: []models.Option{{Label: "A"}, {Label: "B"}, {Label: "C", IsCorrect: true}, {Label: "D"}}},
		{ID: "q-004", QuizID: quizID, Order: 4, A: 1.20, B: 0.20, C: 0.25, Bloom: 2, KC: "UK_capitals",
			Options: []models.Option{{Label: "A"}, {Label: "B"}, {Label: "C"}, {Label: "D", IsCorrect: true}}},
		{ID: "q-005", QuizID: quizID, Order: 5, A: 1.20, B: 0.50, C: 0.25, Bloom: 3, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", IsCorrect: true}, {Label: "B"}, {Label: "C"}, {Label: "D"}}},
	}
	for _, q := range questions {
		r.questions[q.ID] = q
		r.bank[quizID] = append(r.bank[quizID], q.ID)
	}
	return userID, quizID
}

func (r *fakeRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("user %q not found", id)
	}
	return &u, nil
}

func (r *fakeRepo) GetQuiz(ctx context.Context, id string) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quizzes[id]
	if !ok {
		return nil, apperr.NotFound("quiz %q not found", id)
	}
	return &q, nil
}

func (r *fakeRepo) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (r *fakeRepo) ListQuestionsForQuiz(ctx context.Context, quizID string) ([]models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.bank[quizID]
	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.questions[id])
	}
	return out, nil
}

func (r *fakeRepo) GetKCCatalogue(ctx context.Context, quizID string) (map[string]models.KCParams, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.KCParams, len(r.catalogue[quizID]))
	for k, v := range r.catalogue[quizID] {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) GetSession(ctx context.Context, id string) (*models.Session, []models.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil, nil
	}
	interactions := append([]models.Interaction{}, r.interactions[id]...)
	sort.Slice(interactions, func(i, j int) bool { return interactions[i].CreatedAt.Before(interactions[j].CreatedAt) })
	return &s, interactions, nil
}

func (r *fakeRepo) CreateSession(ctx context.Context, s models.Session) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.newID("session")
	r.sessions[s.ID] = s
	return s, nil
}

func (r *fakeRepo) RecordAnswerAtomically(ctx context.Context, sessionID string, interaction models.Interaction, update SessionUpdate) (models.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return models.Interaction{}, apperr.NotFound("session %q not found", sessionID)
	}
	if s.IsCompleted() {
		return models.Interaction{}, apperr.Conflict("session %q already completed", sessionID)
	}
	for _, in := range r.interactions[sessionID] {
		if in.QuestionID == interaction.QuestionID {
			return models.Interaction{}, apperr.Conflict("question %q already answered in session %q", interaction.QuestionID, sessionID)
		}
	}

	interaction.ID = r.newID("interaction")
	r.interactions[sessionID] = append(r.interactions[sessionID], interaction)

	s.Theta = update.Theta
	s.ThetaSD = update.ThetaSD
	s.KCStates = update.KCStates
	r.sessions[sessionID] = s

	return interaction, nil
}

func (r *fakeRepo) CompleteSession(ctx context.Context, sessionID string, completedAt time.Time) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return models.Session{}, apperr.NotFound("session %q not found", sessionID)
	}
	if s.CompletedAt == nil {
		t := completedAt
		s.CompletedAt = &t
		r.sessions[sessionID] = s
	}
	return s, nil
}
