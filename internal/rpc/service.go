// Package rpc exposes the bill operations as a Connect service. Messages are
// plain structs sent as JSON, so any Connect client with a JSON codec can call
// it, as can curl.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/divvy/internal/middleware"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/service"
)

// ServicePath is the mount point of the service.
const ServicePath = "/divvy.v1.BillService/"

const (
	ProcCreateBill          = ServicePath + "CreateBill"
	ProcGetBill             = ServicePath + "GetBill"
	ProcListBills           = ServicePath + "ListBills"
	ProcDeleteBill          = ServicePath + "DeleteBill"
	ProcRefreshBill         = ServicePath + "RefreshBill"
	ProcRestoreBill         = ServicePath + "RestoreBill"
	ProcAddPerson           = ServicePath + "AddPerson"
	ProcRemovePerson        = ServicePath + "RemovePerson"
	ProcAssignItem          = ServicePath + "AssignItem"
	ProcSelfAssign          = ServicePath + "SelfAssign"
	ProcJoin                = ServicePath + "Join"
	ProcUpdateTipTax        = ServicePath + "UpdateTipTax"
	ProcAddItem             = ServicePath + "AddItem"
	ProcDeleteItem          = ServicePath + "DeleteItem"
	ProcUpdateTitle         = ServicePath + "UpdateTitle"
	ProcUpdatePaymentHandle = ServicePath + "UpdatePaymentHandle"
	ProcSetStatus           = ServicePath + "SetStatus"
	ProcSetLocked           = ServicePath + "SetLocked"
	ProcMarkPaid            = ServicePath + "MarkPaid"
	ProcCalculateSplits     = ServicePath + "CalculateSplits"
	ProcGetParticipantView  = ServicePath + "GetParticipantView"
)

// publicProcedures are reachable through the share link without a token.
var publicProcedures = []string{
	ProcSelfAssign,
	ProcJoin,
	ProcCalculateSplits,
	ProcGetParticipantView,
}

// BillServiceHandler implements the Connect BillService.
type BillServiceHandler struct {
	svc *service.BillService
}

// NewBillServiceHandler creates a handler backed by svc.
func NewBillServiceHandler(svc *service.BillService) *BillServiceHandler {
	return &BillServiceHandler{svc: svc}
}

// NewHandler builds the HTTP handler for the service and returns the path to
// mount it on.
func NewHandler(svc *service.BillService, guard *middleware.OwnerGuard) (string, http.Handler) {
	h := NewBillServiceHandler(svc)
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(guard.Interceptor(publicProcedures...), middleware.LoggingInterceptor()),
	}

	mux := http.NewServeMux()
	register(mux, ProcCreateBill, h.CreateBill, opts)
	register(mux, ProcGetBill, h.GetBill, opts)
	register(mux, ProcListBills, h.ListBills, opts)
	register(mux, ProcDeleteBill, h.DeleteBill, opts)
	register(mux, ProcRefreshBill, h.RefreshBill, opts)
	register(mux, ProcRestoreBill, h.RestoreBill, opts)
	register(mux, ProcAddPerson, h.AddPerson, opts)
	register(mux, ProcRemovePerson, h.RemovePerson, opts)
	register(mux, ProcAssignItem, h.AssignItem, opts)
	register(mux, ProcSelfAssign, h.SelfAssign, opts)
	register(mux, ProcJoin, h.Join, opts)
	register(mux, ProcUpdateTipTax, h.UpdateTipTax, opts)
	register(mux, ProcAddItem, h.AddItem, opts)
	register(mux, ProcDeleteItem, h.DeleteItem, opts)
	register(mux, ProcUpdateTitle, h.UpdateTitle, opts)
	register(mux, ProcUpdatePaymentHandle, h.UpdatePaymentHandle, opts)
	register(mux, ProcSetStatus, h.SetStatus, opts)
	register(mux, ProcSetLocked, h.SetLocked, opts)
	register(mux, ProcMarkPaid, h.MarkPaid, opts)
	register(mux, ProcCalculateSplits, h.CalculateSplits, opts)
	register(mux, ProcGetParticipantView, h.GetParticipantView, opts)
	return ServicePath, mux
}

func register[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

// connectError maps a service error onto a Connect code. The message is the
// one shown to users.
func connectError(err error) error {
	code := connect.CodeInternal
	switch service.KindOf(err) {
	case service.KindNotFound:
		code = connect.CodeNotFound
	case service.KindForbidden:
		code = connect.CodePermissionDenied
	case service.KindInvalidInput:
		code = connect.CodeInvalidArgument
	}
	return connect.NewError(code, errors.New(service.MessageOf(err)))
}

func billResponse(bill *models.Bill, err error) (*connect.Response[BillResponse], error) {
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&BillResponse{Bill: bill}), nil
}

func (h *BillServiceHandler) CreateBill(ctx context.Context, req *connect.Request[CreateBillRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.Create(ctx, req.Msg.Title))
}

func (h *BillServiceHandler) GetBill(ctx context.Context, req *connect.Request[GetBillRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.Get(ctx, req.Msg.BillID, req.Msg.Fresh))
}

func (h *BillServiceHandler) ListBills(ctx context.Context, _ *connect.Request[ListBillsRequest]) (*connect.Response[ListBillsResponse], error) {
	bills, err := h.svc.List(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ListBillsResponse{Bills: bills}), nil
}

func (h *BillServiceHandler) DeleteBill(ctx context.Context, req *connect.Request[BillRequest]) (*connect.Response[DeleteBillResponse], error) {
	if err := h.svc.Delete(ctx, req.Msg.BillID); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&DeleteBillResponse{}), nil
}

func (h *BillServiceHandler) RefreshBill(ctx context.Context, req *connect.Request[BillRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.Refresh(ctx, req.Msg.BillID))
}

// RestoreBill writes a client-held snapshot back to storage.
func (h *BillServiceHandler) RestoreBill(ctx context.Context, req *connect.Request[RestoreBillRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.Restore(ctx, req.Msg.Bill))
}

func (h *BillServiceHandler) AddPerson(ctx context.Context, req *connect.Request[PersonRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.AddPerson(ctx, req.Msg.BillID, req.Msg.PersonName))
}

func (h *BillServiceHandler) RemovePerson(ctx context.Context, req *connect.Request[PersonRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.RemovePerson(ctx, req.Msg.BillID, req.Msg.PersonName))
}

func (h *BillServiceHandler) AssignItem(ctx context.Context, req *connect.Request[AssignItemRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.AssignItem(ctx, req.Msg.BillID, req.Msg.ItemID, req.Msg.PersonName))
}

func (h *BillServiceHandler) SelfAssign(ctx context.Context, req *connect.Request[SelfAssignRequest]) (*connect.Response[BillResponse], error) {
	units := 1
	if req.Msg.Units != nil {
		units = *req.Msg.Units
	}
	return billResponse(h.svc.SelfAssign(ctx, req.Msg.BillID, service.SelfAssignInput{
		PersonName: req.Msg.PersonName,
		ItemID:     req.Msg.ItemID,
		Assigned:   req.Msg.Assigned,
		Units:      units,
	}))
}

func (h *BillServiceHandler) Join(ctx context.Context, req *connect.Request[PersonRequest]) (*connect.Response[JoinResponse], error) {
	bill, name, err := h.svc.Join(ctx, req.Msg.BillID, req.Msg.PersonName)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&JoinResponse{PersonName: name, Bill: bill}), nil
}

func (h *BillServiceHandler) UpdateTipTax(ctx context.Context, req *connect.Request[UpdateTipTaxRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.UpdateTipTax(ctx, req.Msg.BillID, req.Msg.TipPercent, req.Msg.Tax))
}

func (h *BillServiceHandler) AddItem(ctx context.Context, req *connect.Request[AddItemRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.AddItem(ctx, req.Msg.BillID, service.NewItem{
		Name:     req.Msg.Name,
		Price:    req.Msg.Price,
		Quantity: req.Msg.Quantity,
	}))
}

func (h *BillServiceHandler) DeleteItem(ctx context.Context, req *connect.Request[DeleteItemRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.DeleteItem(ctx, req.Msg.BillID, req.Msg.ItemID))
}

func (h *BillServiceHandler) UpdateTitle(ctx context.Context, req *connect.Request[UpdateTitleRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.UpdateTitle(ctx, req.Msg.BillID, req.Msg.Title))
}

func (h *BillServiceHandler) UpdatePaymentHandle(ctx context.Context, req *connect.Request[UpdatePaymentHandleRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.UpdatePaymentHandle(ctx, req.Msg.BillID, req.Msg.Handle))
}

func (h *BillServiceHandler) SetStatus(ctx context.Context, req *connect.Request[SetStatusRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.SetStatus(ctx, req.Msg.BillID, req.Msg.Status))
}

func (h *BillServiceHandler) SetLocked(ctx context.Context, req *connect.Request[SetLockedRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.SetLocked(ctx, req.Msg.BillID, req.Msg.Locked))
}

func (h *BillServiceHandler) MarkPaid(ctx context.Context, req *connect.Request[MarkPaidRequest]) (*connect.Response[BillResponse], error) {
	return billResponse(h.svc.MarkPaid(ctx, req.Msg.BillID, req.Msg.PersonName, req.Msg.Paid))
}

func (h *BillServiceHandler) CalculateSplits(ctx context.Context, req *connect.Request[BillRequest]) (*connect.Response[SplitsResponse], error) {
	split, err := h.svc.CalculateSplits(ctx, req.Msg.BillID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SplitsResponse{Split: split}), nil
}

func (h *BillServiceHandler) GetParticipantView(ctx context.Context, req *connect.Request[BillRequest]) (*connect.Response[ParticipantResponse], error) {
	view, err := h.svc.Participant(ctx, req.Msg.BillID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ParticipantResponse{View: view}), nil
}
