package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Handler exposes the attempt engine over a JSON API. Authentication is
// an external concern; the caller's identity arrives in the X-Student-ID
// header, filled in by the gateway in front of this service.
type Handler struct {
	service *app.AttemptService
}

func NewHandler(service *app.AttemptService) *Handler {
	return &Handler{service: service}
}

// Register wires the routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /attempts", h.startAttempt)
	mux.HandleFunc("GET /attempts", h.listAttempts)
	mux.HandleFunc("GET /attempts/{id}", h.getAttempt)
	mux.HandleFunc("GET /attempts/{id}/questions", h.presentation)
	mux.HandleFunc("PUT /attempts/{id}/answers", h.saveAnswers)
	mux.HandleFunc("POST /attempts/{id}/submit", h.submitAttempt)
	mux.HandleFunc("POST /attempts/{id}/abandon", h.abandonAttempt)
	mux.HandleFunc("POST /attempts/{id}/answers/{answerID}/grade", h.gradeAnswer)
	mux.HandleFunc("GET /ws/attempts/{id}/timer", h.serveTimer)
}

type startRequest struct {
	QuizID string `json:"quiz_id"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	studentID := callerID(r)
	if studentID == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing X-Student-ID header")
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeJSONError(w, http.StatusBadRequest, "quiz_id is required")
		return
	}

	attempt, err := h.service.Start(r.Context(), req.QuizID, studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quiz_id")
	if quizID == "" {
		writeJSONError(w, http.StatusBadRequest, "quiz_id is required")
		return
	}
	attempts, err := h.service.List(r.Context(), quizID, r.URL.Query().Get("student_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) presentation(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Presentation(r.Context(), r.PathValue("id"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answersRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

func (h *Handler) saveAnswers(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid answers payload")
		return
	}
	answers, err := h.service.SaveProgress(r.Context(), r.PathValue("id"), callerID(r), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid answers payload")
		return
	}
	attempt, err := h.service.Submit(r.Context(), r.PathValue("id"), callerID(r), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) abandonAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.Abandon(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type gradeRequest struct {
	MarksObtained float64 `json:"marks_obtained"`
	IsCorrect     bool    `json:"is_correct"`
}

func (h *Handler) gradeAnswer(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid grade payload")
		return
	}
	attempt, err := h.service.GradeEssay(r.Context(), r.PathValue("id"), r.PathValue("answerID"), req.MarksObtained, req.IsCorrect)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func callerID(r *http.Request) string {
	if id := r.Header.Get("X-Student-ID"); id != "" {
		return id
	}
	// Query fallback for websocket clients that cannot set headers.
	return r.URL.Query().Get("student_id")
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// unrecognized is a server error; client errors are never retried here.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrAnswerNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrQuizUnavailable),
		errors.Is(err, domain.ErrAttemptLimitExceeded),
		errors.Is(err, domain.ErrAlreadyFinalized):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidQuestionType),
		errors.Is(err, domain.ErrInvalidMarks):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
