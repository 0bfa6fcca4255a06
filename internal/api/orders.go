package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const ordersPath = "/orders/"

func orderPath(id int64) string {
	return "/orders/" + strconv.FormatInt(id, 10)
}

// ListOrders returns every order, newest first (the server's order).
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	p, err := c.Call(ctx, Request{Method: http.MethodGet, Path: ordersPath})
	if err != nil {
		return nil, err
	}

	var orders []Order
	if err := p.Decode(&orders); err != nil {
		return nil, err
	}

	c.logger.Debug("listed orders", slog.Int("count", len(orders)))

	return orders, nil
}

// UpdateOrder applies a partial update and returns the server's view of the
// order. When the server answers without a body the order is re-read from the
// list, so the caller always gets server-computed fields.
func (c *Client) UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (*Order, error) {
	if patch.Empty() {
		return nil, Validation("update for order %d changes no fields", id)
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, Validation("encoding update: %v", err)
	}

	c.logger.Info("updating order", slog.Int64("order_id", id))

	p, err := c.Call(ctx, Request{
		Method: http.MethodPatch,
		Path:   orderPath(id),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}

	if p.Kind == PayloadJSON {
		var o Order
		if err := p.Decode(&o); err != nil {
			return nil, err
		}

		if o.ID != 0 {
			return &o, nil
		}
	}

	return c.findOrder(ctx, id)
}

// ToggleDiscount flips the order's discount server-side.
func (c *Client) ToggleDiscount(ctx context.Context, id int64) error {
	c.logger.Info("toggling discount", slog.Int64("order_id", id))

	_, err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   orderPath(id) + "/toggle-discount",
	})

	return err
}

// AddPayment records a payment of amount against the order.
func (c *Client) AddPayment(ctx context.Context, id int64, amount float64) error {
	if amount <= 0 {
		return Validation("payment amount must be positive, got %v", amount)
	}

	c.logger.Info("adding payment",
		slog.Int64("order_id", id),
		slog.Float64("amount", amount),
	)

	_, err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   orderPath(id) + "/add-payment",
		Query:  url.Values{"amount": {strconv.FormatFloat(amount, 'f', -1, 64)}},
	})

	return err
}

// DeleteOrder deletes the order server-side.
func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	c.logger.Info("deleting order", slog.Int64("order_id", id))

	_, err := c.Call(ctx, Request{Method: http.MethodDelete, Path: orderPath(id)})

	return err
}

// findOrder re-reads one order from the list endpoint.
func (c *Client) findOrder(ctx context.Context, id int64) (*Order, error) {
	orders, err := c.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].ID == id {
			return &orders[i], nil
		}
	}

	return nil, &Error{
		Kind:    KindServer,
		Message: fmt.Sprintf("order %d not found after update", id),
		Err:     ErrNotFound,
	}
}
