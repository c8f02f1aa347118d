package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/divvy/internal/middleware"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/service"
)

type statusResponse struct {
	service.StatusReport
	PasswordRequired bool `json:"password_required"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		StatusReport:     s.bills.Status(),
		PasswordRequired: s.authn.Required(),
	})
}

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Authenticated    bool   `json:"authenticated"`
	PasswordRequired bool   `json:"password_required"`
	Token            string `json:"token,omitempty"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	if !s.authn.Required() {
		writeJSON(w, http.StatusOK, authResponse{Authenticated: true})
		return
	}
	if err := s.authn.Authenticate(req.Password); err != nil {
		slog.Warn("Rejected app password", "remote_addr", r.RemoteAddr)
		writeDetail(w, http.StatusUnauthorized, "Incorrect password")
		return
	}
	token, err := s.jwt.Generate()
	if err != nil {
		slog.Error("Failed to issue token", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Authenticated: true, PasswordRequired: true, Token: token})
}

// handleAuthCheck accepts either ?password= or a bearer token.
func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	if !s.authn.Required() {
		writeJSON(w, http.StatusOK, authResponse{Authenticated: true})
		return
	}
	ok := middleware.IsOwner(r.Context())
	if !ok {
		if password := r.URL.Query().Get("password"); password != "" {
			ok = s.authn.Authenticate(password) == nil
		}
	}
	writeJSON(w, http.StatusOK, authResponse{Authenticated: ok, PasswordRequired: true})
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.bills.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Summary{"bills": summaries})
}

type createBillRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := decode(r, &req, true); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	bill, err := s.bills.Create(r.Context(), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleScanBill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	bill, err := s.bills.Scan(r.Context(), image, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	fresh := false
	if v := r.URL.Query().Get("fresh"); v != "" {
		var err error
		if fresh, err = strconv.ParseBool(v); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid fresh parameter")
			return
		}
	}
	bill, err := s.bills.Get(r.Context(), chi.URLParam(r, "billID"), fresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.bills.Delete(r.Context(), chi.URLParam(r, "billID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	view, err := s.bills.Participant(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCalculateSplits(w http.ResponseWriter, r *http.Request) {
	split, err := s.bills.CalculateSplits(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

type personRequest struct {
	BillID     string `json:"bill_id"`
	PersonName string `json:"person_name"`
}

func (s *Server) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.AddPerson(r.Context(), req.BillID, req.PersonName))
}

func (s *Server) handleRemovePerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.RemovePerson(r.Context(), req.BillID, req.PersonName))
}

type assignItemRequest struct {
	BillID     string `json:"bill_id"`
	ItemID     string `json:"item_id"`
	PersonName string `json:"person_name"`
}

func (s *Server) handleAssignItem(w http.ResponseWriter, r *http.Request) {
	var req assignItemRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.AssignItem(r.Context(), req.BillID, req.ItemID, req.PersonName))
}

type selfAssignRequest struct {
	PersonName string `json:"person_name"`
	ItemID     string `json:"item_id"`
	Assigned   bool   `json:"assigned"`
	Units      *int   `json:"units"`
}

func (s *Server) handleSelfAssign(w http.ResponseWriter, r *http.Request) {
	var req selfAssignRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	units := 1
	if req.Units != nil {
		units = *req.Units
	}
	bill, err := s.bills.SelfAssign(r.Context(), chi.URLParam(r, "billID"), service.SelfAssignInput{
		PersonName: req.PersonName,
		ItemID:     req.ItemID,
		Assigned:   req.Assigned,
		Units:      units,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBill{Status: "updated", Bill: bill})
}

type joinRequest struct {
	PersonName string `json:"person_name"`
}

type joinResponse struct {
	Status     string       `json:"status"`
	PersonName string       `json:"person_name"`
	Bill       *models.Bill `json:"bill"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	bill, name, err := s.bills.Join(r.Context(), chi.URLParam(r, "billID"), req.PersonName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Status: "joined", PersonName: name, Bill: bill})
}

type tipTaxRequest struct {
	BillID     string   `json:"bill_id"`
	TipPercent *float64 `json:"tip_percent"`
	Tax        *float64 `json:"tax"`
}

func (s *Server) handleUpdateTipTax(w http.ResponseWriter, r *http.Request) {
	var req tipTaxRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.UpdateTipTax(r.Context(), req.BillID, req.TipPercent, req.Tax))
}

type addItemRequest struct {
	BillID   string  `json:"bill_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity *int    `json:"quantity"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	s.respondBill(w)(s.bills.AddItem(r.Context(), req.BillID, service.NewItem{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: qty,
	}))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.respondBill(w)(s.bills.DeleteItem(r.Context(), chi.URLParam(r, "billID"), chi.URLParam(r, "itemID")))
}

type titleRequest struct {
	BillID string `json:"bill_id"`
	Title  string `json:"title"`
}

func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.UpdateTitle(r.Context(), req.BillID, req.Title))
}

type paymentHandleRequest struct {
	BillID         string `json:"bill_id"`
	FintocUsername string `json:"fintoc_username"`
}

func (s *Server) handleUpdatePaymentHandle(w http.ResponseWriter, r *http.Request) {
	var req paymentHandleRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.UpdatePaymentHandle(r.Context(), req.BillID, req.FintocUsername))
}

type lockRequest struct {
	BillID string `json:"bill_id"`
	Locked bool   `json:"locked"`
}

func (s *Server) handleLockBill(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.SetLocked(r.Context(), req.BillID, req.Locked))
}

type markPaidRequest struct {
	BillID     string `json:"bill_id"`
	PersonName string `json:"person_name"`
	Paid       bool   `json:"paid"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req markPaidRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	s.respondBill(w)(s.bills.MarkPaid(r.Context(), req.BillID, req.PersonName, req.Paid))
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusBill struct {
	Status string       `json:"status"`
	Bill   *models.Bill `json:"bill"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	bill, err := s.bills.SetStatus(r.Context(), chi.URLParam(r, "billID"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBill{Status: "updated", Bill: bill})
}

type restoreResponse struct {
	Status string       `json:"status"`
	BillID string       `json:"bill_id"`
	Bill   *models.Bill `json:"bill"`
}

func (s *Server) handleRestoreBill(w http.ResponseWriter, r *http.Request) {
	var snapshot models.Bill
	if !decodeOrFail(w, r, &snapshot) {
		return
	}
	bill, err := s.bills.Restore(r.Context(), &snapshot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{Status: "restored", BillID: bill.ID, Bill: bill})
}

func (s *Server) handleRefreshBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.bills.Refresh(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBill{Status: "refreshed", Bill: bill})
}

type refreshAllResponse struct {
	Status     string `json:"status"`
	BillsCount int    `json:"bills_count"`
	Message    string `json:"message"`
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.bills.RefreshAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshAllResponse{
		Status:     "refreshed",
		BillsCount: n,
		Message:    "All bills refreshed from storage",
	})
}

// respondBill writes the bill returned by a mutation, or its error.
func (s *Server) respondBill(w http.ResponseWriter) func(*models.Bill, error) {
	return func(bill *models.Bill, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bill)
	}
}
