package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/infra/logging"
)

type createRequest struct {
	ProjectID       string `json:"project_id"`
	AIModel         string `json:"ai_model"`
	OpeningQuestion string `json:"opening_question"`
}

type turnView struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type interviewView struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	AIModel         string     `json:"ai_model"`
	State           string     `json:"state"`
	MessageCount    int        `json:"message_count"`
	CurrentQuestion string     `json:"current_question,omitempty"`
	PendingJobID    string     `json:"pending_job_id,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	Turns           []turnView `json:"turns"`
}

func toInterviewView(iv *model.Interview) interviewView {
	turns := make([]turnView, 0, len(iv.Turns))
	for _, t := range iv.Turns {
		turns = append(turns, turnView{Question: t.Question, Answer: t.Answer})
	}
	return interviewView{
		ID:              iv.ID,
		ProjectID:       iv.ProjectID,
		AIModel:         iv.AIModel,
		State:           string(iv.State),
		MessageCount:    iv.MessageCount(),
		CurrentQuestion: iv.CurrentQuestion,
		PendingJobID:    iv.PendingJobID,
		FailureReason:   iv.FailureReason,
		Turns:           turns,
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Error: "invalid request body"})
		return
	}
	iv, err := s.uc.Create(r.Context(), req.ProjectID, req.AIModel, req.OpeningQuestion)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInterviewView(iv))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	iv, err := s.uc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInterviewView(iv))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithInterviewID(r.Context(), id)
	question, err := s.uc.Start(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Question string `json:"question"`
	}{Question: question})
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Error: "invalid request body"})
		return
	}
	ctx := logging.WithInterviewID(r.Context(), id)
	jobID, err := s.uc.SendMessage(ctx, id, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, struct {
		JobID string `json:"job_id"`
	}{JobID: jobID})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Finish(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithJobID(r.Context(), id)
	view, err := s.uc.JobStatus(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
