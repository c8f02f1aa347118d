package rpc

import (
	"github.com/mmynk/divvy/internal/calculator"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/service"
)

type CreateBillRequest struct {
	Title string `json:"title"`
}

type GetBillRequest struct {
	BillID string `json:"bill_id"`
	Fresh  bool   `json:"fresh,omitempty"`
}

type BillRequest struct {
	BillID string `json:"bill_id"`
}

// BillResponse carries the bill after a read or a mutation.
type BillResponse struct {
	Bill *models.Bill `json:"bill"`
}

type ListBillsRequest struct{}

type ListBillsResponse struct {
	Bills []models.Summary `json:"bills"`
}

type DeleteBillResponse struct{}

type PersonRequest struct {
	BillID     string `json:"bill_id"`
	PersonName string `json:"person_name"`
}

type AssignItemRequest struct {
	BillID     string `json:"bill_id"`
	ItemID     string `json:"item_id"`
	PersonName string `json:"person_name"`
}

type SelfAssignRequest struct {
	BillID     string `json:"bill_id"`
	ItemID     string `json:"item_id"`
	PersonName string `json:"person_name"`
	Assigned   bool   `json:"assigned"`

	// Units defaults to one.
	Units *int `json:"units,omitempty"`
}

type JoinResponse struct {
	PersonName string       `json:"person_name"`
	Bill       *models.Bill `json:"bill"`
}

type UpdateTipTaxRequest struct {
	BillID     string   `json:"bill_id"`
	TipPercent *float64 `json:"tip_percent,omitempty"`
	Tax        *float64 `json:"tax,omitempty"`
}

type AddItemRequest struct {
	BillID   string  `json:"bill_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity,omitempty"`
}

type DeleteItemRequest struct {
	BillID string `json:"bill_id"`
	ItemID string `json:"item_id"`
}

type UpdateTitleRequest struct {
	BillID string `json:"bill_id"`
	Title  string `json:"title"`
}

type UpdatePaymentHandleRequest struct {
	BillID string `json:"bill_id"`
	Handle string `json:"fintoc_username"`
}

type SetStatusRequest struct {
	BillID string `json:"bill_id"`
	Status string `json:"status"`
}

type SetLockedRequest struct {
	BillID string `json:"bill_id"`
	Locked bool   `json:"locked"`
}

type MarkPaidRequest struct {
	BillID     string `json:"bill_id"`
	PersonName string `json:"person_name"`
	Paid       bool   `json:"paid"`
}

type RestoreBillRequest struct {
	Bill *models.Bill `json:"bill"`
}

type SplitsResponse struct {
	Split *calculator.Split `json:"split"`
}

type ParticipantResponse struct {
	View *service.ParticipantView `json:"view"`
}
