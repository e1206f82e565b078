// Package seed loads a small fixed content catalogue for local
// development and integration tests. Content authoring itself is out
// of scope for this repository; this package exists only so the kernel
// has something to run against without an external content pipeline.
package seed

import (
	"context"

	"github.com/dlalloyd/adaptive-kernel/internal/models"
)

// Repository is the slice of storage the seeder writes through.
type Repository interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (models.User, error)
	CreateQuiz(ctx context.Context, title string) (models.Quiz, error)
	UpsertKCParams(ctx context.Context, quizID, kcID string, params models.KCParams) error
	CreateQuestion(ctx context.Context, q models.Question) (models.Question, error)
}

// Result names the catalogue the seeder produced so callers don't have
// to re-derive generated ids.
type Result struct {
	UserID string
	QuizID string
}

// knownPasswordHash is the bcrypt hash of "seed-password-not-for-prod",
// baked in so local dev has a login-able seed account without hashing
// at every startup.
const knownPasswordHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOe6Yvgx/Bi4PKHnEBIVS7qu4mfQVDy86"

// UKGeography writes a five-question UK-Geography bank: a=1.20, c=0.25
// throughout, b spread across {-0.80, -1.50, -0.60, 0.20, 0.50}, all
// tagged to knowledge component UK_capitals with pL0=0.60, pT=0.25,
// pS=0.08, pG=0.25.
func UKGeography(ctx context.Context, repo Repository) (Result, error) {
	user, err := repo.CreateUser(ctx, "Seed Learner", "learner@example.com", knownPasswordHash)
	if err != nil {
		return Result{}, err
	}

	quiz, err := repo.CreateQuiz(ctx, "UK Geography")
	if err != nil {
		return Result{}, err
	}

	kcParams := models.KCParams{PL0: 0.60, PT: 0.25, PS: 0.08, PG: 0.25}
	if err := repo.UpsertKCParams(ctx, quiz.ID, "UK_capitals", kcParams); err != nil {
		return Result{}, err
	}

	questions := []models.Question{
		{QuizID: quiz.ID, Order: 1, Stem: "What is the capital of England?", A: 1.20, B: -0.80, C: 0.25, Bloom: 1, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", Text: "London", IsCorrect: true}, {Label: "B", Text: "Manchester"}, {Label: "C", Text: "Birmingham"}, {Label: "D", Text: "Leeds"}}},
		{QuizID: quiz.ID, Order: 2, Stem: "What is the capital of Scotland?", A: 1.20, B: -1.50, C: 0.25, Bloom: 1, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", Text: "Glasgow"}, {Label: "B", Text: "Edinburgh", IsCorrect: true}, {Label: "C", Text: "Aberdeen"}, {Label: "D", Text: "Dundee"}}},
		{QuizID: quiz.ID, Order: 3, Stem: "What is the capital of Wales?", A: 1.20, B: -0.60, C: 0.25, Bloom: 2, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", Text: "Swansea"}, {Label: "B", Text: "Newport"}, {Label: "C", Text: "Cardiff", IsCorrect: true}, {Label: "D", Text: "Bangor"}}},
		{QuizID: quiz.ID, Order: 4, Stem: "What is the capital of Northern Ireland?", A: 1.20, B: 0.20, C: 0.25, Bloom: 2, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", Text: "Derry"}, {Label: "B", Text: "Armagh"}, {Label: "C", Text: "Lisburn"}, {Label: "D", Text: "Belfast", IsCorrect: true}}},
		{QuizID: quiz.ID, Order: 5, Stem: "Which city is the seat of the UK Parliament?", A: 1.20, B: 0.50, C: 0.25, Bloom: 3, KC: "UK_capitals",
			Options: []models.Option{{Label: "A", Text: "London", IsCorrect: true}, {Label: "B", Text: "Oxford"}, {Label: "C", Text: "Cambridge"}, {Label: "D", Text: "York"}}},
	}

	for _, q := range questions {
		if _, err := repo.CreateQuestion(ctx, q); err != nil {
			return Result{}, err
		}
	}

	return Result{UserID: user.ID, QuizID: quiz.ID}, nil
}
