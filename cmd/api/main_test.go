package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/agencyCRM/pkg/agency"
	"github.com/mcclellann/agencyCRM/pkg/commission"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/mcclellann/agencyCRM/pkg/pipeline"
	"github.com/mcclellann/agencyCRM/pkg/store"
	"github.com/shopspring/decimal"
)

func setupTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	svc := agency.NewService(s, agency.Options{
		DefaultBonus: decimal.NewFromInt(125),
		Targets: map[models.PeriodKind]decimal.Decimal{
			models.PeriodWeekly:  decimal.NewFromInt(5000),
			models.PeriodMonthly: decimal.NewFromInt(20000),
			models.PeriodYearly:  decimal.NewFromInt(240000),
		},
	})
	if err := svc.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	return NewServer(svc).Routes()
}

func doJSON(t *testing.T, router *mux.Router, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("Failed to encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Errorf("Expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var resp errorResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Code != code {
		t.Errorf("Expected error code %s, got %q", code, resp.Code)
	}
}

func createLead(t *testing.T, router *mux.Router, name string, coverage int) models.Lead {
	t.Helper()
	rr := doJSON(t, router, "POST", "/leads", map[string]any{
		"name":            name,
		"email":           "lead@example.com",
		"policy_type":     "home",
		"source":          "referral",
		"coverage_amount": coverage,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var lead models.Lead
	json.Unmarshal(rr.Body.Bytes(), &lead)
	return lead
}

func TestAPI_CreateAndGetLead(t *testing.T) {
	router := setupTestRouter(t)
	lead := createLead(t, router, "Avery Cole", 250000)

	if lead.Status != models.LeadStatusNew {
		t.Errorf("Expected status new, got %s", lead.Status)
	}

	rr := doJSON(t, router, "GET", "/leads/"+lead.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var fetched models.Lead
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != lead.ID || !fetched.CoverageAmount.Equal(decimal.NewFromInt(250000)) {
		t.Errorf("Expected lead %s worth 250000, got %s worth %s", lead.ID, fetched.ID, fetched.CoverageAmount)
	}

	rr = doJSON(t, router, "GET", "/leads", nil)
	var leads []models.Lead
	json.Unmarshal(rr.Body.Bytes(), &leads)
	if len(leads) != 1 {
		t.Errorf("Expected 1 lead, got %d", len(leads))
	}
}

func TestAPI_CreateLeadValidation(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing name", map[string]any{"policy_type": "auto"}},
		{"bad email", map[string]any{"name": "x", "email": "nope", "policy_type": "auto"}},
		{"bad status", map[string]any{"name": "x", "status": "won", "policy_type": "auto"}},
		{"unknown policy type", map[string]any{"name": "x", "policy_type": "pet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, "POST", "/leads", tt.payload)
			expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
		})
	}

	req := httptest.NewRequest("POST", "/leads", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	expectError(t, rr, http.StatusBadRequest, "BAD_REQUEST")
}

func TestAPI_MoveLead(t *testing.T) {
	router := setupTestRouter(t)
	lead := createLead(t, router, "Blake Moss", 100000)

	rr := doJSON(t, router, "POST", "/pipeline/moves", map[string]string{
		"lead_id": lead.ID.String(), "from": "new", "to": "qualified",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", "/pipeline", nil)
	var board pipeline.Summary
	json.Unmarshal(rr.Body.Bytes(), &board)
	if len(board.Stages) != len(models.PipelineStages) {
		t.Fatalf("Expected %d stages, got %d", len(models.PipelineStages), len(board.Stages))
	}
	if board.Stages[0].LeadCount != 0 || board.Stages[2].LeadCount != 1 {
		t.Errorf("Expected lead in qualified, got new=%d qualified=%d", board.Stages[0].LeadCount, board.Stages[2].LeadCount)
	}
	if !board.Stages[2].Value.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("Expected qualified value 100000, got %s", board.Stages[2].Value)
	}

	rr = doJSON(t, router, "GET", "/leads/"+lead.ID.String(), nil)
	var fetched models.Lead
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.Status != models.LeadStatusQualified || fetched.LastContactedAt == nil {
		t.Errorf("Expected stored status qualified with contact time, got %s", fetched.Status)
	}

	rr = doJSON(t, router, "POST", "/pipeline/moves", map[string]string{
		"lead_id": lead.ID.String(), "from": "qualified", "to": "invalidStage",
	})
	expectError(t, rr, http.StatusBadRequest, "INVALID_STAGE")

	rr = doJSON(t, router, "POST", "/pipeline/moves", map[string]string{
		"lead_id": uuid.New().String(), "from": "new", "to": "contacted",
	})
	expectError(t, rr, http.StatusNotFound, "NOT_FOUND")

	rr = doJSON(t, router, "POST", "/pipeline/moves", map[string]string{
		"lead_id": "not-a-uuid", "from": "new", "to": "contacted",
	})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAPI_LeadStatusLost(t *testing.T) {
	router := setupTestRouter(t)
	lead := createLead(t, router, "Casey Lin", 40000)

	rr := doJSON(t, router, "PATCH", "/leads/"+lead.ID.String()+"/status", map[string]string{"status": "lost"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", "/pipeline", nil)
	var board pipeline.Summary
	json.Unmarshal(rr.Body.Bytes(), &board)
	if board.TotalLeads != 0 {
		t.Errorf("Expected lost lead off the board, got %d leads", board.TotalLeads)
	}
}

func recordSale(t *testing.T, router *mux.Router, payload map[string]any) models.CommissionEntry {
	t.Helper()
	rr := doJSON(t, router, "POST", "/commissions", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var entry models.CommissionEntry
	json.Unmarshal(rr.Body.Bytes(), &entry)
	return entry
}

func TestAPI_RecordSaleAndPeriods(t *testing.T) {
	router := setupTestRouter(t)
	entry := recordSale(t, router, map[string]any{
		"policy_type":    "auto",
		"client_name":    "Dana Park",
		"annual_premium": 1200,
	})

	if !entry.BaseCommission.Equal(decimal.NewFromInt(600)) || !entry.TotalCommission.Equal(decimal.NewFromInt(750)) {
		t.Errorf("Expected 600/750, got %s/%s", entry.BaseCommission, entry.TotalCommission)
	}
	if !entry.UsesDefaultBonus || entry.PolicyID == "" {
		t.Errorf("Expected a default-bonus entry with a generated policy id, got %+v", entry)
	}

	rr := doJSON(t, router, "GET", "/commissions/"+entry.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	rr = doJSON(t, router, "GET", "/commissions/periods", nil)
	var progress []commission.Progress
	json.Unmarshal(rr.Body.Bytes(), &progress)
	if len(progress) != 3 {
		t.Fatalf("Expected 3 periods, got %d", len(progress))
	}
	for _, p := range progress {
		if !p.Current.Equal(decimal.NewFromInt(750)) {
			t.Errorf("Expected %s current 750, got %s", p.Kind, p.Current)
		}
	}
	if progress[0].Kind != models.PeriodWeekly || progress[0].Percentage != 15 {
		t.Errorf("Expected weekly at 15%%, got %s at %d%%", progress[0].Kind, progress[0].Percentage)
	}

	rr = doJSON(t, router, "PUT", "/commissions/periods/weekly/target", map[string]any{"target": 1000})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var weekly commission.Progress
	json.Unmarshal(rr.Body.Bytes(), &weekly)
	if weekly.Percentage != 75 {
		t.Errorf("Expected 75%% of new weekly target, got %d", weekly.Percentage)
	}

	rr = doJSON(t, router, "PUT", "/commissions/periods/quarterly/target", map[string]any{"target": 1000})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAPI_RecordSaleValidation(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"negative premium", map[string]any{"policy_type": "auto", "client_name": "x", "annual_premium": -5}},
		{"bonus below 100", map[string]any{"policy_type": "auto", "client_name": "x", "annual_premium": 100, "bonus_percentage": 90}},
		{"missing client", map[string]any{"policy_type": "auto", "annual_premium": 100}},
		{"bad date", map[string]any{"policy_type": "auto", "client_name": "x", "annual_premium": 100, "date": "14/10/2026"}},
		{"bad status", map[string]any{"policy_type": "auto", "client_name": "x", "annual_premium": 100, "status": "void"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, "POST", "/commissions", tt.payload)
			expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
		})
	}

	recordSale(t, router, map[string]any{"policy_id": "POL-1", "policy_type": "auto", "client_name": "x", "annual_premium": 100})
	rr := doJSON(t, router, "POST", "/commissions", map[string]any{"policy_id": "POL-1", "policy_type": "auto", "client_name": "y", "annual_premium": 100})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAPI_EditBonusAndDefault(t *testing.T) {
	router := setupTestRouter(t)
	custom := recordSale(t, router, map[string]any{"policy_type": "life", "client_name": "Eli", "annual_premium": 2000})
	tracking := recordSale(t, router, map[string]any{"policy_type": "home", "client_name": "Fay", "annual_premium": 1200})

	rr := doJSON(t, router, "PATCH", "/commissions/"+custom.ID.String()+"/bonus", map[string]any{"bonus_percentage": 150})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var edited models.CommissionEntry
	json.Unmarshal(rr.Body.Bytes(), &edited)
	if !edited.TotalCommission.Equal(decimal.NewFromInt(1500)) || edited.UsesDefaultBonus {
		t.Errorf("Expected custom total 1500, got %s (default=%v)", edited.TotalCommission, edited.UsesDefaultBonus)
	}

	rr = doJSON(t, router, "PUT", "/commissions/default-bonus", map[string]any{"bonus_percentage": 200})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp defaultBonusResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Updated) != 1 || resp.Updated[0].ID != tracking.ID {
		t.Errorf("Expected only %s to be updated, got %+v", tracking.ID, resp.Updated)
	}
	if !resp.Updated[0].TotalCommission.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Expected tracking total 1200, got %s", resp.Updated[0].TotalCommission)
	}

	rr = doJSON(t, router, "GET", "/commissions/default-bonus", nil)
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.BonusPercentage.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected default 200, got %s", resp.BonusPercentage)
	}

	rr = doJSON(t, router, "PUT", "/commissions/default-bonus", map[string]any{"bonus_percentage": 50})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")

	rr = doJSON(t, router, "PATCH", "/commissions/"+custom.ID.String()+"/status", map[string]string{"status": "paid"})
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestAPI_NotFound(t *testing.T) {
	router := setupTestRouter(t)
	missing := uuid.New().String()

	expectError(t, doJSON(t, router, "GET", "/leads/"+missing, nil), http.StatusNotFound, "NOT_FOUND")
	expectError(t, doJSON(t, router, "GET", "/commissions/"+missing, nil), http.StatusNotFound, "NOT_FOUND")
	expectError(t, doJSON(t, router, "PATCH", "/commissions/"+missing+"/bonus", map[string]any{"bonus_percentage": 150}),
		http.StatusNotFound, "NOT_FOUND")
	expectError(t, doJSON(t, router, "GET", "/leads/abc", nil), http.StatusBadRequest, "BAD_REQUEST")
}
