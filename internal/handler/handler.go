package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Pavel2201/habit-stake/internal/models"
	"github.com/Pavel2201/habit-stake/internal/service"
	"github.com/gorilla/mux"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "username, email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.svc.Register(req.Username, req.Email, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.svc.Login(req.Email, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateHabit handles habit creation with an optional stake
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title          string               `json:"title"`
		FrequencyUnit  models.FrequencyUnit `json:"frequency_unit"`
		FrequencyValue int                  `json:"frequency_value"`
		StartDate      string               `json:"start_date"`
		EndDate        *string              `json:"end_date"`
		StakeAmount    *float64             `json:"stake_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		http.Error(w, "Invalid start_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	var endDate *time.Time
	if req.EndDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			http.Error(w, "Invalid end_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		endDate = &parsed
	}

	habit, err := h.svc.CreateHabit(r.Context(), req.Title, req.FrequencyUnit, req.FrequencyValue, startDate, endDate, req.StakeAmount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// SubmitCheckIn handles a manual check-in for a habit
func (h *Handler) SubmitCheckIn(w http.ResponseWriter, r *http.Request) {
	habitID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	var req struct {
		CompletedAt *time.Time `json:"completed_at"`
		Success     *bool      `json:"success"`
		ProofURL    *string    `json:"proof_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	completedAt := time.Now().UTC()
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}
	success := true
	if req.Success != nil {
		success = *req.Success
	}

	checkin, err := h.svc.SubmitCheckIn(r.Context(), habitID, completedAt, success, req.ProofURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkin)
}

// ListMissedPeriods returns the missed-period records of a habit
func (h *Handler) ListMissedPeriods(w http.ResponseWriter, r *http.Request) {
	habitID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	records, err := h.svc.ListMissedPeriods(r.Context(), habitID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// TriggerScan runs one compliance scan pass; called by the external
// scheduler
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.RunScan(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ResolveComplete handles the "complete retroactively" resolution of a
// missed period
func (h *Handler) ResolveComplete(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.svc.ResolveAsComplete)
}

// ResolveFailed handles the "admit failure" resolution of a missed period
func (h *Handler) ResolveFailed(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.svc.ResolveAsFailed)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, now time.Time) (*models.MissedPeriodRecord, error)) {
	recordID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}

	rec, err := fn(r.Context(), recordID, time.Now().UTC())
	if errors.Is(err, models.ErrAlreadyResolved) {
		// A record someone else already resolved is a neutral outcome for
		// the user, not an error.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"already_resolved": true,
			"record":           rec,
		})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// AdvancePayment is the billing collaborator's status callback
func (h *Handler) AdvancePayment(w http.ResponseWriter, r *http.Request) {
	obligationID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid obligation ID", http.StatusBadRequest)
		return
	}

	var req struct {
		PaymentStatus models.PaymentStatus `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ob, err := h.svc.AdvancePayment(obligationID, req.PaymentStatus)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ob)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
