package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Order is a record owned by the service. Monetary fields are computed by the
// server (total = subtotal - discount, balance = total - paid) and must never
// be recomputed client-side. Nullable columns are pointers.
type Order struct {
	ID           int64     `json:"id"`
	Name         *string   `json:"nombre"`
	Date         *string   `json:"fecha"`
	Departure    *string   `json:"dir_salida"`
	Destination  *string   `json:"dir_destino"`
	OutboundTime *string   `json:"hor_ida"`
	ReturnTime   *string   `json:"hor_regreso"`
	Duration     *string   `json:"duracion"`
	Capacity     *string   `json:"capacidadu"`
	Subtotal     *float64  `json:"subtotal"`
	Discount     *float64  `json:"descuento"`
	Total        *float64  `json:"total"`
	Paid         *float64  `json:"abonado"`
	PaymentDate  *string   `json:"fecha_abono"`
	Balance      *float64  `json:"liquidar"`
	CreatedAt    Timestamp `json:"created_at"`
}

// DisplayName returns the customer name or a placeholder.
func (o Order) DisplayName() string {
	if o.Name == nil || *o.Name == "" {
		return "(no name)"
	}

	return *o.Name
}

// HasDiscount reports whether a discount is currently applied.
func (o Order) HasDiscount() bool {
	return o.Discount != nil && *o.Discount > 0
}

// Settled reports whether the server-computed balance is fully paid.
func (o Order) Settled() bool {
	return o.Balance != nil && *o.Balance <= 0
}

// OrderPatch is a partial update: only non-nil fields are sent, so only those
// change server-side.
type OrderPatch struct {
	Name         *string `json:"nombre,omitempty"`
	Date         *string `json:"fecha,omitempty"`
	Departure    *string `json:"dir_salida,omitempty"`
	Destination  *string `json:"dir_destino,omitempty"`
	OutboundTime *string `json:"hor_ida,omitempty"`
	ReturnTime   *string `json:"hor_regreso,omitempty"`
	Duration     *string `json:"duracion,omitempty"`
	Capacity     *string `json:"capacidadu,omitempty"`
	PaymentDate  *string `json:"fecha_abono,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p OrderPatch) Empty() bool {
	return p == OrderPatch{}
}

// User is the authenticated principal as reported by the service.
type User struct {
	Username string `json:"username"`
}

// Timestamp is a creation time as the service writes it: ISO 8601, with or
// without a zone. Zone-less values are UTC.
type Timestamp struct {
	time.Time
}

// timestampLayouts are tried in order for zone-less values.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON accepts RFC 3339, zone-less ISO 8601, and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}

	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
