package session

import (
	"context"
	"math"
	"testing"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
	"github.com/dlalloyd/adaptive-kernel/internal/irt"
)

func TestCreateSessionBootstrap(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "")
	if err != nil {
		t.Fatal(err)
	}

	if sess.Theta != irt.Theta0 {
		t.Errorf("Theta = %v, want %v", sess.Theta, irt.Theta0)
	}
	if sess.ThetaSD != irt.Sigma0 {
		t.Errorf("ThetaSD = %v, want %v", sess.ThetaSD, irt.Sigma0)
	}
	if sess.Condition != "adaptive" {
		t.Errorf("Condition = %v, want adaptive", sess.Condition)
	}
	if len(sess.KCStates) != 1 {
		t.Errorf("len(KCStates) = %d, want 1", len(sess.KCStates))
	}
}

func TestCreateSessionUnknownUser(t *testing.T) {
	repo := newFakeRepo()
	_, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	if _, err := engine.CreateSession(context.Background(), "ghost", quizID, "adaptive"); !apperr.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCreateSessionInvalidCondition(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	if _, err := engine.CreateSession(context.Background(), userID, quizID, "bogus"); !apperr.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestSelectNextScenarioB(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "adaptive")
	if err != nil {
		t.Fatal(err)
	}

	next, err := engine.SelectNext(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next.Completed {
		t.Fatal("session should not be complete")
	}
	if next.Question.ID != "q-002" {
		t.Errorf("SelectNext() = %s, want q-002", next.Question.ID)
	}
}

func TestSubmitAnswerScenarioC(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "adaptive")
	if err != nil {
		t.Fatal(err)
	}

	result, err := engine.SubmitAnswer(context.Background(), sess.ID, "q-002", "b", 4200)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Correct {
		t.Fatal("expected q-002 answer 'b' to be correct")
	}
	if result.ThetaAfter <= result.ThetaBefore {
		t.Errorf("ThetaAfter (%v) should exceed ThetaBefore (%v)", result.ThetaAfter, result.ThetaBefore)
	}
	if result.ThetaDelta <= 0 {
		t.Errorf("ThetaDelta = %v, want > 0", result.ThetaDelta)
	}
	if !(result.CI95Low <= result.ThetaAfter && result.ThetaAfter <= result.CI95High) {
		t.Errorf("CI95 [%v, %v] does not bracket ThetaAfter %v", result.CI95Low, result.CI95High, result.ThetaAfter)
	}
}

func TestSubmitAnswerScenarioDBKT(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "adaptive")
	if err != nil {
		t.Fatal(err)
	}

	result, err := engine.SubmitAnswer(context.Background(), sess.ID, "q-002", "b", 0)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(result.PLearnedAfter-0.885) > 1e-3 {
		t.Errorf("PLearnedAfter = %v, want ~0.885", result.PLearnedAfter)
	}
	if result.IsMastered {
		t.Error("should not be mastered after a single correct response")
	}
}

func TestSubmitAnswerScenarioEDuplicate(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "adaptive")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.SubmitAnswer(context.Background(), sess.ID, "q-002", "b", 0); err != nil {
		t.Fatal(err)
	}

	_, err = engine.SubmitAnswer(context.Background(), sess.ID, "q-002", "a", 0)
	if !apperr.Is(err, apperr.ErrConflict) {
		t.Errorf("expected Conflict for duplicate answer, got %v", err)
	}
}

func TestSessionCompletionScenarioF(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "static")
	if err != nil {
		t.Fatal(err)
	}

	answers := map[string]string{"q-001": "A", "q-002": "B", "q-003": "C", "q-004": "D", "q-005": "A"}
	for i := 0; i < 5; i++ {
		next, err := engine.SelectNext(context.Background(), sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if next.Completed {
			t.Fatalf("session completed early after %d answers", i)
		}
		if _, err := engine.SubmitAnswer(context.Background(), sess.ID, next.Question.ID, answers[next.Question.ID], 0); err != nil {
			t.Fatal(err)
		}
	}

	final, err := engine.SelectNext(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !final.Completed {
		t.Fatal("expected session to be completed after 5 answers")
	}
	if final.TotalAnswered != 5 {
		t.Errorf("TotalAnswered = %d, want 5", final.TotalAnswered)
	}

	stored, _, err := repo.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.CompletedAt == nil {
		t.Fatal("expected completedAt to be persisted after the session exhausts its bank")
	}

	// q-006 was never answered, so this Conflict can only come from the
	// completed-session guard, not the duplicate-answer check.
	if _, err := engine.SubmitAnswer(context.Background(), sess.ID, "q-006", "A", 0); !apperr.Is(err, apperr.ErrConflict) {
		t.Errorf("expected Conflict for submitAnswer on completed session, got %v", err)
	}
}

func TestSessionCompletionIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	userID, quizID := repo.seedUKGeography()
	engine := NewEngine(repo)

	sess, err := engine.CreateSession(context.Background(), userID, quizID, "static")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		next, err := engine.SelectNext(context.Background(), sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.SubmitAnswer(context.Background(), sess.ID, next.Question.ID, "A", 0); err != nil {
			t.Fatal(err)
		}
	}

	first, err := engine.SelectNext(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.SelectNext(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Completed || !second.Completed {
		t.Fatal("expected both calls to report completion")
	}
	if first.FinalTheta != second.FinalTheta {
		t.Errorf("FinalTheta changed between repeated completed calls: %v != %v", first.FinalTheta, second.FinalTheta)
	}
}
