package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
	"github.com/dlalloyd/adaptive-kernel/internal/middleware"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
	"github.com/dlalloyd/adaptive-kernel/internal/session"
)

// Handler serves the session-mutating routes.
type Handler struct {
	engine *session.Engine
}

type createSessionRequest struct {
	UserID    string `json:"userId"`
	QuizID    string `json:"quizId"`
	Condition string `json:"condition,omitempty"`
}

type createSessionResponse struct {
	SessionID string  `json:"sessionId"`
	Condition string  `json:"condition"`
	Theta     float64 `json:"theta"`
	ThetaSD   float64 `json:"thetaSd"`
	Message   string  `json:"message"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.InvalidArgument("invalid request body"))
		return
	}
	if req.UserID == "" || req.QuizID == "" {
		writeError(w, apperr.InvalidArgument("userId and quizId are required"))
		return
	}

	callerID, _ := r.Context().Value(middleware.UserIDKey).(string)
	if callerID != "" && callerID != req.UserID {
		writeError(w, apperr.InvalidArgument("userId must match the authenticated caller"))
		return
	}

	sess, err := h.engine.CreateSession(r.Context(), req.UserID, req.QuizID, models.Condition(req.Condition))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		Condition: string(sess.Condition),
		Theta:     sess.Theta,
		ThetaSD:   sess.ThetaSD,
		Message:   "session created",
	})
}

type optionSet struct {
	A string `json:"A,omitempty"`
	B string `json:"B,omitempty"`
	C string `json:"C,omitempty"`
	D string `json:"D,omitempty"`
}

type nextQuestionMeta struct {
	CurrentTheta       float64 `json:"currentTheta"`
	ItemDifficulty     float64 `json:"itemDifficulty"`
	ItemInformation    float64 `json:"itemInformation"`
	QuestionsAnswered  int     `json:"questionsAnswered"`
	QuestionsRemaining int     `json:"questionsRemaining"`
	Condition          string  `json:"condition"`
}

type nextQuestionResponse struct {
	QuestionID string           `json:"questionId"`
	Text       string           `json:"text"`
	Options    optionSet        `json:"options"`
	Bloom      int              `json:"bloom"`
	KC         string           `json:"kc"`
	Meta       nextQuestionMeta `json:"meta"`
}

type completedResponse struct {
	Completed     bool    `json:"completed"`
	FinalTheta    float64 `json:"finalTheta"`
	TotalAnswered int     `json:"totalAnswered"`
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	result, err := h.engine.SelectNext(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Completed {
		writeJSON(w, http.StatusOK, completedResponse{
			Completed:     true,
			FinalTheta:    result.FinalTheta,
			TotalAnswered: result.TotalAnswered,
		})
		return
	}

	opts := optionSet{}
	for _, o := range result.Question.Options {
		switch o.Label {
		case "A":
			opts.A = o.Text
		case "B":
			opts.B = o.Text
		case "C":
			opts.C = o.Text
		case "D":
			opts.D = o.Text
		}
	}

	writeJSON(w, http.StatusOK, nextQuestionResponse{
		QuestionID: result.Question.ID,
		Text:       result.Question.Stem,
		Options:    opts,
		Bloom:      result.Question.Bloom,
		KC:         result.Question.KC,
		Meta: nextQuestionMeta{
			CurrentTheta:       result.CurrentTheta,
			ItemDifficulty:     result.Question.B,
			ItemInformation:    result.ItemInformation,
			QuestionsAnswered:  result.QuestionsAnswered,
			QuestionsRemaining: result.QuestionsRemaining,
			Condition:          string(result.Condition),
		},
	})
}

type submitAnswerRequest struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
	ResponseTimeMs int    `json:"responseTimeMs,omitempty"`
}

type thetaReport struct {
	Before float64    `json:"before"`
	After  float64    `json:"after"`
	Delta  float64    `json:"delta"`
	SD     float64    `json:"sd"`
	CI95   [2]float64 `json:"ci95"`
}

type bktReport struct {
	KC             string  `json:"kc"`
	PLearnedBefore float64 `json:"pLearned_before"`
	PLearnedAfter  float64 `json:"pLearned_after"`
	IsMastered     bool    `json:"isMastered"`
}

type submitAnswerResponse struct {
	Correct        bool        `json:"correct"`
	CorrectAnswer  string      `json:"correctAnswer"`
	SelectedAnswer string      `json:"selectedAnswer"`
	Theta          thetaReport `json:"theta"`
	BKT            bktReport   `json:"bkt"`
	InteractionID  string      `json:"interactionId"`
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.InvalidArgument("invalid request body"))
		return
	}
	if req.QuestionID == "" || req.SelectedAnswer == "" {
		writeError(w, apperr.InvalidArgument("questionId and selectedAnswer are required"))
		return
	}

	result, err := h.engine.SubmitAnswer(r.Context(), sessionID, req.QuestionID, req.SelectedAnswer, req.ResponseTimeMs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitAnswerResponse{
		Correct:        result.Correct,
		CorrectAnswer:  result.CorrectLabel,
		SelectedAnswer: result.SelectedAnswer,
		Theta: thetaReport{
			Before: result.ThetaBefore,
			After:  result.ThetaAfter,
			Delta:  result.ThetaDelta,
			SD:     result.ThetaSD,
			CI95:   [2]float64{result.CI95Low, result.CI95High},
		},
		BKT: bktReport{
			KC:             result.KC,
			PLearnedBefore: result.PLearnedBefore,
			PLearnedAfter:  result.PLearnedAfter,
			IsMastered:     result.IsMastered,
		},
		InteractionID: result.InteractionID,
	})
}
