package models

// Option is one of the four labelled choices on a question.
type Option struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is an immutable calibrated item. It is created by content
// authoring (out of scope for this repo) and never mutated by the kernel.
type Question struct {
	ID      string   `json:"id"`
	QuizID  string   `json:"quiz_id"`
	Order   int      `json:"order"`
	Stem    string   `json:"stem"`
	Options []Option `json:"options"`

	// IRT 3PL calibration.
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`

	Bloom int    `json:"bloom"` // 1 remember, 2 understand, 3 apply
	KC    string `json:"kc"`    // knowledge-component id
}

// CorrectLabel returns the label of the option marked correct, under
// A,B,C,D authored order.
func (q Question) CorrectLabel() (string, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.Label, true
		}
	}
	return "", false
}

// Quiz groups an ordered set of questions.
type Quiz struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// User is the learner identity the kernel authenticates against.
// PasswordHash never leaves the process in a JSON response.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}
