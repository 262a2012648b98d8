package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/agencyCRM/pkg/agency"
	"github.com/mcclellann/agencyCRM/pkg/commission"
	"github.com/mcclellann/agencyCRM/pkg/crmerr"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

// Server holds the agency service.
type Server struct {
	agency   *agency.Service
	validate *validator.Validate
}

func NewServer(svc *agency.Service) *Server {
	return &Server{
		agency:   svc,
		validate: validator.New(),
	}
}

// Routes registers every endpoint on a new router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.healthHandler).Methods("GET")

	router.HandleFunc("/leads", s.listLeadsHandler).Methods("GET")
	router.HandleFunc("/leads", s.createLeadHandler).Methods("POST")
	router.HandleFunc("/leads/{id}", s.getLeadHandler).Methods("GET")
	router.HandleFunc("/leads/{id}/status", s.updateLeadStatusHandler).Methods("PATCH")

	router.HandleFunc("/pipeline", s.pipelineHandler).Methods("GET")
	router.HandleFunc("/pipeline/moves", s.moveLeadHandler).Methods("POST")

	router.HandleFunc("/commissions", s.listEntriesHandler).Methods("GET")
	router.HandleFunc("/commissions", s.recordSaleHandler).Methods("POST")
	router.HandleFunc("/commissions/periods", s.periodsHandler).Methods("GET")
	router.HandleFunc("/commissions/periods/{kind}/target", s.setTargetHandler).Methods("PUT")
	router.HandleFunc("/commissions/default-bonus", s.getDefaultBonusHandler).Methods("GET")
	router.HandleFunc("/commissions/default-bonus", s.setDefaultBonusHandler).Methods("PUT")
	router.HandleFunc("/commissions/{id}", s.getEntryHandler).Methods("GET")
	router.HandleFunc("/commissions/{id}/bonus", s.editBonusHandler).Methods("PATCH")
	router.HandleFunc("/commissions/{id}/status", s.entryStatusHandler).Methods("PATCH")

	return router
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps the service error kinds to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case crmerr.IsValidation(err):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case crmerr.IsInvalidStage(err):
		writeError(w, http.StatusBadRequest, "INVALID_STAGE", err.Error())
	case crmerr.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case crmerr.IsExternal(err):
		writeError(w, http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR", "The data service is unavailable, please try again later.")
	default:
		log.Printf("Unexpected error: %v\n", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// decode reads a JSON body into req and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createLeadRequest struct {
	Name           string          `json:"name" validate:"required"`
	Email          string          `json:"email" validate:"omitempty,email"`
	Phone          string          `json:"phone"`
	Status         string          `json:"status" validate:"omitempty,oneof=new contacted qualified proposal closed lost"`
	Source         string          `json:"source"`
	PolicyType     string          `json:"policy_type" validate:"required"`
	CoverageAmount decimal.Decimal `json:"coverage_amount"`
	Notes          string          `json:"notes"`
}

func (s *Server) createLeadHandler(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if !s.decode(w, r, &req) {
		return
	}

	lead, err := s.agency.CreateLead(agency.LeadInput{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Status:         models.LeadStatus(req.Status),
		Source:         models.LeadSource(req.Source),
		PolicyType:     models.PolicyType(req.PolicyType),
		CoverageAmount: req.CoverageAmount,
		Notes:          req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (s *Server) listLeadsHandler(w http.ResponseWriter, r *http.Request) {
	leads, err := s.agency.ListLeads()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if leads == nil {
		leads = []*models.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) getLeadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "lead")
	if !ok {
		return
	}
	lead, err := s.agency.GetLead(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) updateLeadStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "lead")
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}

	lead, err := s.agency.UpdateLeadStatus(id, models.LeadStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) pipelineHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agency.Pipeline())
}

type moveRequest struct {
	LeadID string `json:"lead_id" validate:"required,uuid"`
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
}

func (s *Server) moveLeadHandler(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !s.decode(w, r, &req) {
		return
	}

	lead, err := s.agency.MoveLead(uuid.MustParse(req.LeadID), models.LeadStatus(req.From), models.LeadStatus(req.To))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type saleRequest struct {
	PolicyID        string           `json:"policy_id"`
	PolicyType      string           `json:"policy_type" validate:"required"`
	ClientName      string           `json:"client_name" validate:"required"`
	AnnualPremium   decimal.Decimal  `json:"annual_premium"`
	BonusPercentage *decimal.Decimal `json:"bonus_percentage"`
	Date            string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status          string           `json:"status" validate:"omitempty,oneof=pending paid cancelled"`
}

func (s *Server) recordSaleHandler(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !s.decode(w, r, &req) {
		return
	}

	var date time.Time
	if req.Date != "" {
		// format already checked by the validator
		date, _ = time.Parse("2006-01-02", req.Date)
	}

	entry, err := s.agency.RecordSale(commission.Sale{
		PolicyID:        req.PolicyID,
		PolicyType:      models.PolicyType(req.PolicyType),
		ClientName:      req.ClientName,
		AnnualPremium:   req.AnnualPremium,
		BonusPercentage: req.BonusPercentage,
		Date:            date,
		Status:          models.EntryStatus(req.Status),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) listEntriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agency.Entries())
}

func (s *Server) getEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "commission entry")
	if !ok {
		return
	}
	entry, err := s.agency.Entry(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type bonusRequest struct {
	BonusPercentage decimal.Decimal `json:"bonus_percentage"`
}

func (s *Server) editBonusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "commission entry")
	if !ok {
		return
	}
	var req bonusRequest
	if !s.decode(w, r, &req) {
		return
	}

	entry, err := s.agency.EditEntryBonus(id, req.BonusPercentage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) entryStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "commission entry")
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}

	entry, err := s.agency.SetEntryStatus(id, models.EntryStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) periodsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agency.Progress())
}

type targetRequest struct {
	Target decimal.Decimal `json:"target"`
}

func (s *Server) setTargetHandler(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !s.decode(w, r, &req) {
		return
	}

	progress, err := s.agency.SetTarget(models.PeriodKind(mux.Vars(r)["kind"]), req.Target)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type defaultBonusResponse struct {
	BonusPercentage decimal.Decimal          `json:"bonus_percentage"`
	Updated         []models.CommissionEntry `json:"updated,omitempty"`
}

func (s *Server) getDefaultBonusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, defaultBonusResponse{BonusPercentage: s.agency.DefaultBonus()})
}

func (s *Server) setDefaultBonusHandler(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if !s.decode(w, r, &req) {
		return
	}

	updated, err := s.agency.SetDefaultBonus(req.BonusPercentage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defaultBonusResponse{BonusPercentage: req.BonusPercentage, Updated: updated})
}
