package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/divvy/internal/calculator"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/service"
)

// Client calls a remote BillService.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	token      string
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// means http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// WithToken returns a copy of the client that sends the owner token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func call[Req, Res any](ctx context.Context, c *Client, procedure string, msg *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](c.httpClient, c.baseURL+procedure, connect.WithCodec(jsonCodec{}))
	req := connect.NewRequest(msg)
	if c.token != "" {
		req.Header().Set("Authorization", "Bearer "+c.token)
	}
	res, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func callBill[Req any](ctx context.Context, c *Client, procedure string, msg *Req) (*models.Bill, error) {
	res, err := call[Req, BillResponse](ctx, c, procedure, msg)
	if err != nil {
		return nil, err
	}
	return res.Bill, nil
}

func (c *Client) CreateBill(ctx context.Context, title string) (*models.Bill, error) {
	return callBill(ctx, c, ProcCreateBill, &CreateBillRequest{Title: title})
}

func (c *Client) GetBill(ctx context.Context, billID string, fresh bool) (*models.Bill, error) {
	return callBill(ctx, c, ProcGetBill, &GetBillRequest{BillID: billID, Fresh: fresh})
}

func (c *Client) ListBills(ctx context.Context) ([]models.Summary, error) {
	res, err := call[ListBillsRequest, ListBillsResponse](ctx, c, ProcListBills, &ListBillsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Bills, nil
}

func (c *Client) DeleteBill(ctx context.Context, billID string) error {
	_, err := call[BillRequest, DeleteBillResponse](ctx, c, ProcDeleteBill, &BillRequest{BillID: billID})
	return err
}

func (c *Client) RefreshBill(ctx context.Context, billID string) (*models.Bill, error) {
	return callBill(ctx, c, ProcRefreshBill, &BillRequest{BillID: billID})
}

func (c *Client) RestoreBill(ctx context.Context, bill *models.Bill) (*models.Bill, error) {
	return callBill(ctx, c, ProcRestoreBill, &RestoreBillRequest{Bill: bill})
}

func (c *Client) AddPerson(ctx context.Context, billID, name string) (*models.Bill, error) {
	return callBill(ctx, c, ProcAddPerson, &PersonRequest{BillID: billID, PersonName: name})
}

func (c *Client) RemovePerson(ctx context.Context, billID, name string) (*models.Bill, error) {
	return callBill(ctx, c, ProcRemovePerson, &PersonRequest{BillID: billID, PersonName: name})
}

func (c *Client) AssignItem(ctx context.Context, billID, itemID, name string) (*models.Bill, error) {
	return callBill(ctx, c, ProcAssignItem, &AssignItemRequest{BillID: billID, ItemID: itemID, PersonName: name})
}

func (c *Client) SelfAssign(ctx context.Context, req *SelfAssignRequest) (*models.Bill, error) {
	return callBill(ctx, c, ProcSelfAssign, req)
}

// Join adds name to the bill and returns the name as stored.
func (c *Client) Join(ctx context.Context, billID, name string) (string, *models.Bill, error) {
	res, err := call[PersonRequest, JoinResponse](ctx, c, ProcJoin, &PersonRequest{BillID: billID, PersonName: name})
	if err != nil {
		return "", nil, err
	}
	return res.PersonName, res.Bill, nil
}

func (c *Client) UpdateTipTax(ctx context.Context, req *UpdateTipTaxRequest) (*models.Bill, error) {
	return callBill(ctx, c, ProcUpdateTipTax, req)
}

func (c *Client) AddItem(ctx context.Context, req *AddItemRequest) (*models.Bill, error) {
	return callBill(ctx, c, ProcAddItem, req)
}

func (c *Client) DeleteItem(ctx context.Context, billID, itemID string) (*models.Bill, error) {
	return callBill(ctx, c, ProcDeleteItem, &DeleteItemRequest{BillID: billID, ItemID: itemID})
}

func (c *Client) UpdateTitle(ctx context.Context, billID, title string) (*models.Bill, error) {
	return callBill(ctx, c, ProcUpdateTitle, &UpdateTitleRequest{BillID: billID, Title: title})
}

func (c *Client) UpdatePaymentHandle(ctx context.Context, billID, handle string) (*models.Bill, error) {
	return callBill(ctx, c, ProcUpdatePaymentHandle, &UpdatePaymentHandleRequest{BillID: billID, Handle: handle})
}

func (c *Client) SetStatus(ctx context.Context, billID, status string) (*models.Bill, error) {
	return callBill(ctx, c, ProcSetStatus, &SetStatusRequest{BillID: billID, Status: status})
}

func (c *Client) SetLocked(ctx context.Context, billID string, locked bool) (*models.Bill, error) {
	return callBill(ctx, c, ProcSetLocked, &SetLockedRequest{BillID: billID, Locked: locked})
}

func (c *Client) MarkPaid(ctx context.Context, billID, name string, paid bool) (*models.Bill, error) {
	return callBill(ctx, c, ProcMarkPaid, &MarkPaidRequest{BillID: billID, PersonName: name, Paid: paid})
}

func (c *Client) CalculateSplits(ctx context.Context, billID string) (*calculator.Split, error) {
	res, err := call[BillRequest, SplitsResponse](ctx, c, ProcCalculateSplits, &BillRequest{BillID: billID})
	if err != nil {
		return nil, err
	}
	return res.Split, nil
}

func (c *Client) GetParticipantView(ctx context.Context, billID string) (*service.ParticipantView, error) {
	res, err := call[BillRequest, ParticipantResponse](ctx, c, ProcGetParticipantView, &BillRequest{BillID: billID})
	if err != nil {
		return nil, err
	}
	return res.View, nil
}
