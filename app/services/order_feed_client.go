package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/models"
)

const defaultOrderFeedTimeout = 15 * time.Second

// ErrOrderFeedUnavailable wraps transport level failures talking to the order feed
var ErrOrderFeedUnavailable = errors.New("order feed unavailable")

// OrderFeedClient reads orders and shipments of a seller account from the marketplace
type OrderFeedClient interface {
	GetOrders(ctx context.Context, sellerID string, query models.OrderQuery) (*models.OrderPage, error)
	// GetShipmentAddress returns nil without error when the shipment has no address
	GetShipmentAddress(ctx context.Context, sellerID, shipmentID string) (*models.ShipmentAddress, error)
}

// NewOrderFeedClient builds the client selected by cfg.Provider
func NewOrderFeedClient(cfg config.OrderFeedConfig) (OrderFeedClient, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPOrderFeedClient(cfg)
	case "", "mock":
		return NewMockOrderFeedClient(), nil
	default:
		return nil, fmt.Errorf("unknown order feed provider: %s", cfg.Provider)
	}
}

type httpOrderFeedClient struct {
	cfg     config.OrderFeedConfig
	baseURL string
	client  *http.Client
}

// NewHTTPOrderFeedClient creates a client for the marketplace order feed REST API
func NewHTTPOrderFeedClient(cfg config.OrderFeedConfig) (OrderFeedClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("order feed base url not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOrderFeedTimeout
	}
	return &httpOrderFeedClient{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *httpOrderFeedClient) GetOrders(ctx context.Context, sellerID string, query models.OrderQuery) (*models.OrderPage, error) {
	params := url.Values{}
	params.Set("date_from", query.DateFrom.UTC().Format(time.RFC3339))
	params.Set("date_to", query.DateTo.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(query.Limit))
	params.Set("offset", strconv.Itoa(query.Offset))

	endpoint := fmt.Sprintf("%s/sellers/%s/orders?%s", c.baseURL, url.PathEscape(sellerID), params.Encode())
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("list orders http status: %d", status)
	}

	var page models.OrderPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode JSON into OrderPage: %w", err)
	}
	return &page, nil
}

func (c *httpOrderFeedClient) GetShipmentAddress(ctx context.Context, sellerID, shipmentID string) (*models.ShipmentAddress, error) {
	endpoint := fmt.Sprintf("%s/sellers/%s/shipments/%s/address", c.baseURL, url.PathEscape(sellerID), url.PathEscape(shipmentID))
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("shipment address http status: %d", status)
	}

	var addr models.ShipmentAddress
	if err := json.Unmarshal(body, &addr); err != nil {
		return nil, fmt.Errorf("failed to decode JSON into ShipmentAddress: %w", err)
	}
	return &addr, nil
}

func (c *httpOrderFeedClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrOrderFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// MockOrderFeedClient serves orders and shipments from memory
type MockOrderFeedClient struct {
	mu        sync.Mutex
	orders    map[string][]models.Order
	shipments map[string]*models.ShipmentAddress
	queries   []models.OrderQuery
	lookups   []string

	// OrdersErr fails every GetOrders call when set
	OrdersErr error
	// OrdersErrAtOffset fails GetOrders for the given offsets only
	OrdersErrAtOffset map[int]error
	// ShipmentErrs fails GetShipmentAddress for the given shipment ids
	ShipmentErrs map[string]error
}

// NewMockOrderFeedClient creates an empty in-memory order feed
func NewMockOrderFeedClient() *MockOrderFeedClient {
	return &MockOrderFeedClient{
		orders:            make(map[string][]models.Order),
		shipments:         make(map[string]*models.ShipmentAddress),
		OrdersErrAtOffset: make(map[int]error),
		ShipmentErrs:      make(map[string]error),
	}
}

// AddOrders seeds orders for a seller
func (m *MockOrderFeedClient) AddOrders(sellerID string, orders ...models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[sellerID] = append(m.orders[sellerID], orders...)
}

// SetShipment seeds the address of a shipment
func (m *MockOrderFeedClient) SetShipment(shipmentID string, addr models.ShipmentAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipments[shipmentID] = &addr
}

func (m *MockOrderFeedClient) GetOrders(ctx context.Context, sellerID string, query models.OrderQuery) (*models.OrderPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)
	if m.OrdersErr != nil {
		return nil, m.OrdersErr
	}
	if err, ok := m.OrdersErrAtOffset[query.Offset]; ok {
		return nil, err
	}

	var matching []models.Order
	for _, o := range m.orders[sellerID] {
		if o.CreatedAt != nil {
			if !query.DateFrom.IsZero() && o.CreatedAt.Before(query.DateFrom) {
				continue
			}
			if !query.DateTo.IsZero() && o.CreatedAt.After(query.DateTo) {
				continue
			}
		}
		matching = append(matching, o)
	}
	sort.SliceStable(matching, func(i, j int) bool {
		a, b := matching[i].CreatedAt, matching[j].CreatedAt
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})

	page := &models.OrderPage{Total: len(matching)}
	if query.Offset >= len(matching) {
		return page, nil
	}
	end := len(matching)
	if query.Limit > 0 && query.Offset+query.Limit < end {
		end = query.Offset + query.Limit
	}
	page.Orders = append(page.Orders, matching[query.Offset:end]...)
	page.HasMore = end < len(matching)
	return page, nil
}

func (m *MockOrderFeedClient) GetShipmentAddress(ctx context.Context, sellerID, shipmentID string) (*models.ShipmentAddress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups = append(m.lookups, shipmentID)
	if err, ok := m.ShipmentErrs[shipmentID]; ok {
		return nil, err
	}
	addr, ok := m.shipments[shipmentID]
	if !ok {
		return nil, nil
	}
	copied := *addr
	return &copied, nil
}

// GetQueries returns the order queries received so far
func (m *MockOrderFeedClient) GetQueries() []models.OrderQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderQuery(nil), m.queries...)
}

// GetShipmentLookups returns the shipment ids looked up so far
func (m *MockOrderFeedClient) GetShipmentLookups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lookups...)
}
