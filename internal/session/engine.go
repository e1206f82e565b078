// Package session orchestrates one learner's quiz attempt: it loads prior
// state through a Repository, runs the irt/bkt/selector cores, and writes
// the result back atomically. It owns the session state machine and every
// invariant named against it.
package session

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
	"github.com/dlalloyd/adaptive-kernel/internal/bkt"
	"github.com/dlalloyd/adaptive-kernel/internal/irt"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
	"github.com/dlalloyd/adaptive-kernel/internal/selector"
)

// Repository is the abstract contract the engine depends on. It is not
// HTTP- or storage-specific; internal/store provides the Postgres-backed
// implementation.
type Repository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetQuiz(ctx context.Context, id string) (*models.Quiz, error)
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	ListQuestionsForQuiz(ctx context.Context, quizID string) ([]models.Question, error)
	GetKCCatalogue(ctx context.Context, quizID string) (map[string]models.KCParams, error)
	GetSession(ctx context.Context, id string) (*models.Session, []models.Interaction, error)
	CreateSession(ctx context.Context, s models.Session) (models.Session, error)
	RecordAnswerAtomically(ctx context.Context, sessionID string, interaction models.Interaction, update SessionUpdate) (models.Interaction, error)
	CompleteSession(ctx context.Context, sessionID string, completedAt time.Time) (models.Session, error)
}

// SessionUpdate is the new session snapshot written in the same
// transaction as the interaction record. KCStates is the full post-update
// map, for repositories that persist it wholesale. TouchedKC/TouchedState
// additionally name the single KC this response updated (if any), so a
// repository may instead apply a targeted patch to its serialised
// kcStates blob rather than rewriting it in full.
type SessionUpdate struct {
	Theta    float64
	ThetaSD  float64
	KCStates map[string]models.KCState

	TouchedKC    string
	TouchedState *models.KCState
}

// Engine is the session orchestrator. One Engine serves every session;
// state lives entirely in the Repository.
type Engine struct {
	repo Repository
}

// NewEngine wires the engine to its repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// CreateSession starts a new learner session at the prior ability and KC
// defaults.
func (e *Engine) CreateSession(ctx context.Context, userID, quizID string, condition models.Condition) (models.Session, error) {
	if condition == "" {
		condition = models.ConditionAdaptive
	}
	if !models.ValidConditions(condition) {
		return models.Session{}, apperr.InvalidArgument("unknown condition %q", condition)
	}

	if _, err := e.repo.GetUser(ctx, userID); err != nil {
		return models.Session{}, err
	}
	if _, err := e.repo.GetQuiz(ctx, quizID); err != nil {
		return models.Session{}, err
	}

	catalogue, err := e.repo.GetKCCatalogue(ctx, quizID)
	if err != nil {
		return models.Session{}, err
	}

	draft := models.Session{
		UserID:    userID,
		QuizID:    quizID,
		Condition: condition,
		StartedAt: time.Now().UTC(),
		Theta:     irt.Theta0,
		ThetaSD:   irt.Sigma0,
		KCStates:  bkt.InitialiseAllKCs(catalogue),
	}

	created, err := e.repo.CreateSession(ctx, draft)
	if err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}

	log.Printf("[session] created id=%s user=%s quiz=%s condition=%s", created.ID, userID, quizID, condition)
	return created, nil
}

// NextQuestionResult is the outcome of SelectNext: either a question to
// serve, or a completion notice.
type NextQuestionResult struct {
	Completed     bool
	FinalTheta    float64
	TotalAnswered int

	Question           models.Question
	CurrentTheta       float64
	ItemInformation    float64
	QuestionsAnswered  int
	QuestionsRemaining int
	Condition          models.Condition
}

// SelectNext advances a session to its next question, or completes it if
// every quiz question has already been answered.
func (e *Engine) SelectNext(ctx context.Context, sessionID string) (NextQuestionResult, error) {
	sess, interactions, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return NextQuestionResult{}, err
	}
	if sess == nil {
		return NextQuestionResult{}, apperr.NotFound("session %q not found", sessionID)
	}
	if sess.IsCompleted() {
		return NextQuestionResult{
			Completed:     true,
			FinalTheta:    round3(sess.Theta),
			TotalAnswered: len(interactions),
		}, nil
	}

	bank, err := e.repo.ListQuestionsForQuiz(ctx, sess.QuizID)
	if err != nil {
		return NextQuestionResult{}, err
	}

	answered := make(map[string]bool, len(interactions))
	for _, in := range interactions {
		answered[in.QuestionID] = true
	}

	if len(answered) >= len(bank) {
		return e.completeSession(ctx, sess, len(interactions))
	}

	criteria := selector.Criteria{
		TargetTheta: sess.Theta,
		ExcludeIDs:  answered,
		Static:      sess.Condition == models.ConditionStatic,
	}
	question, ok, err := selector.Select(bank, criteria)
	if err != nil {
		return NextQuestionResult{}, err
	}
	if !ok {
		return e.completeSession(ctx, sess, len(interactions))
	}

	info, err := selector.InformationAt(sess.Theta, question)
	if err != nil {
		return NextQuestionResult{}, err
	}

	return NextQuestionResult{
		Question:           question,
		CurrentTheta:       round3(sess.Theta),
		ItemInformation:    info,
		QuestionsAnswered:  len(answered),
		QuestionsRemaining: len(bank) - len(answered),
		Condition:          sess.Condition,
	}, nil
}

func (e *Engine) completeSession(ctx context.Context, sess *models.Session, totalAnswered int) (NextQuestionResult, error) {
	completed, err := e.repo.CompleteSession(ctx, sess.ID, time.Now().UTC())
	if err != nil {
		return NextQuestionResult{}, err
	}

	log.Printf("[session] completed id=%s totalAnswered=%d finalTheta=%.3f", completed.ID, totalAnswered, completed.Theta)
	return NextQuestionResult{
		Completed:     true,
		FinalTheta:    round3(completed.Theta),
		TotalAnswered: totalAnswered,
	}, nil
}

// AnswerResult is the outcome of SubmitAnswer.
type AnswerResult struct {
	Correct        bool
	CorrectLabel   string
	SelectedAnswer string

	ThetaBefore float64
	ThetaAfter  float64
	ThetaDelta  float64
	ThetaSD     float64
	CI95Low     float64
	CI95High    float64

	KC             string
	PLearnedBefore float64
	PLearnedAfter  float64
	IsMastered     bool

	InteractionID string
}

// SubmitAnswer scores one response, updates θ and the touched KC's
// posterior, and writes both atomically with the new interaction record.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, questionID, selectedAnswer string, responseTimeMs int) (AnswerResult, error) {
	sess, interactions, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if sess == nil {
		return AnswerResult{}, apperr.NotFound("session %q not found", sessionID)
	}
	if sess.IsCompleted() {
		return AnswerResult{}, apperr.Conflict("session %q already completed", sessionID)
	}

	question, err := e.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if question == nil {
		return AnswerResult{}, apperr.NotFound("question %q not found", questionID)
	}
	if question.QuizID != sess.QuizID {
		return AnswerResult{}, apperr.InvalidArgument("question %q does not belong to quiz %q", questionID, sess.QuizID)
	}
	for _, in := range interactions {
		if in.QuestionID == questionID {
			return AnswerResult{}, apperr.Conflict("question %q already answered in session %q", questionID, sessionID)
		}
	}

	normalised := strings.ToUpper(strings.TrimSpace(selectedAnswer))
	correctLabel, _ := question.CorrectLabel()
	isCorrect := normalised == correctLabel

	responses := make([]irt.Response, 0, len(interactions)+1)
	for _, in := range interactions {
		prior, err := e.repo.GetQuestion(ctx, in.QuestionID)
		if err != nil {
			return AnswerResult{}, err
		}
		if prior == nil {
			continue
		}
		responses = append(responses, irt.Response{A: prior.A, B: prior.B, C: prior.C, Correct: in.IsCorrect})
	}
	responses = append(responses, irt.Response{A: question.A, B: question.B, C: question.C, Correct: isCorrect})

	eap, err := irt.EAPEstimate(responses, irt.Theta0, irt.Sigma0)
	if err != nil {
		return AnswerResult{}, err
	}

	kcStates := sess.KCStates
	if kcStates == nil {
		kcStates = map[string]models.KCState{}
	}

	var pLearnedBefore, pLearnedAfter float64
	var mastered bool
	var nextState models.KCState

	catalogue, err := e.repo.GetKCCatalogue(ctx, sess.QuizID)
	if err != nil {
		return AnswerResult{}, err
	}
	params, inCatalogue := catalogue[question.KC]

	switch {
	case inCatalogue:
		current, ok := kcStates[question.KC]
		if !ok {
			current = models.KCState{KCID: question.KC, PLearned: params.PL0}
		}
		pLearnedBefore = current.PLearned
		nextState, err = bkt.UpdateKCState(current, isCorrect, params)
		if err != nil {
			return AnswerResult{}, err
		}
		pLearnedAfter = nextState.PLearned
		mastered = nextState.IsMastered
		kcStates[question.KC] = nextState
	default:
		pLearnedBefore = models.CDefault
		pLearnedAfter = models.CDefault
	}

	now := time.Now().UTC()
	interaction := models.Interaction{
		SessionID:      sessionID,
		QuestionID:     questionID,
		SelectedAnswer: normalised,
		IsCorrect:      isCorrect,
		ResponseTimeMs: responseTimeMs,
		ThetaBefore:    sess.Theta,
		ThetaAfter:     eap.Theta,
		PLearnedBefore: pLearnedBefore,
		PLearnedAfter:  pLearnedAfter,
		CreatedAt:      now,
	}

	update := SessionUpdate{
		Theta:    eap.Theta,
		ThetaSD:  eap.SD,
		KCStates: kcStates,
	}
	if inCatalogue {
		update.TouchedKC = question.KC
		update.TouchedState = &nextState
	}

	written, err := e.repo.RecordAnswerAtomically(ctx, sessionID, interaction, update)
	if err != nil {
		return AnswerResult{}, err
	}

	log.Printf("[session] answer id=%s question=%s correct=%v theta=%.3f->%.3f", sessionID, questionID, isCorrect, sess.Theta, eap.Theta)

	return AnswerResult{
		Correct:        isCorrect,
		CorrectLabel:   correctLabel,
		SelectedAnswer: normalised,
		ThetaBefore:    round3(sess.Theta),
		ThetaAfter:     round3(eap.Theta),
		ThetaDelta:     round3(eap.Theta - sess.Theta),
		ThetaSD:        round3(eap.SD),
		CI95Low:        round3(eap.CI95Low),
		CI95High:       round3(eap.CI95High),
		KC:             question.KC,
		PLearnedBefore: round3(pLearnedBefore),
		PLearnedAfter:  round3(pLearnedAfter),
		IsMastered:     mastered,
		InteractionID:  written.ID,
	}, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
