// Package fakeapi is an in-memory stand-in for the order service, used by
// tests across the module. It speaks the same wire format: password-grant
// login issuing signed JWTs, bearer-authenticated order endpoints, and PDF
// rendering that returns application/pdf bytes.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tonimelisma/orderdesk/internal/api"
)

// Route keys used by Calls, FailNext, and HoldNext.
const (
	RouteLogin           = "POST /auth/login"
	RouteMe              = "GET /auth/me"
	RouteListOrders      = "GET /orders/"
	RouteUpdateOrder     = "PATCH /orders/{id}"
	RouteToggleDiscount  = "POST /orders/{id}/toggle-discount"
	RouteAddPayment      = "POST /orders/{id}/add-payment"
	RouteDeleteOrder     = "DELETE /orders/{id}"
	RouteFromSpreadsheet = "POST /pdf/from-excel"
	RouteFromOrder       = "POST /pdf/from-data"
)

// discountRate is the share of the subtotal a toggled-on discount removes.
const discountRate = 0.10

var signingKey = []byte("fakeapi-signing-key")

type fault struct {
	status int
	body   string
}

// Gate holds one request after its response is computed and before it is
// written, so tests can interleave other calls deterministically.
type Gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

// Started is closed when the held request has computed its response.
func (g *Gate) Started() <-chan struct{} { return g.started }

// Release lets the held request finish. Safe to call more than once.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// Server is the fake service. Safe for concurrent use.
type Server struct {
	mu      sync.Mutex
	users   map[string]string
	tokens  map[string]string
	orders  map[int64]*api.Order
	nextID  int64
	calls   map[string]int
	faults  map[string][]fault
	gates   map[string][]*Gate
	nowFunc func() time.Time

	httpSrv *httptest.Server
}

// New creates a fake with one user and no orders.
func New(username, password string) *Server {
	return &Server{
		users:   map[string]string{username: password},
		tokens:  make(map[string]string),
		orders:  make(map[int64]*api.Order),
		nextID:  1,
		calls:   make(map[string]int),
		faults:  make(map[string][]fault),
		gates:   make(map[string][]*Gate),
		nowFunc: time.Now,
	}
}

// Start serves the fake on a local listener and returns its base URL.
func (s *Server) Start() string {
	r := chi.NewRouter()
	s.Register(r)
	s.httpSrv = httptest.NewServer(r)

	return s.httpSrv.URL
}

// Close stops the listener started by Start.
func (s *Server) Close() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
}

// Register mounts the service routes on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/auth/login", s.wrap(RouteLogin, s.handleLogin))

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/auth/me", s.wrap(RouteMe, s.handleMe))
		r.Get("/orders/", s.wrap(RouteListOrders, s.handleList))
		r.Patch("/orders/{id}", s.wrap(RouteUpdateOrder, s.handleUpdate))
		r.Post("/orders/{id}/toggle-discount", s.wrap(RouteToggleDiscount, s.handleToggleDiscount))
		r.Post("/orders/{id}/add-payment", s.wrap(RouteAddPayment, s.handleAddPayment))
		r.Delete("/orders/{id}", s.wrap(RouteDeleteOrder, s.handleDelete))
		r.Post("/pdf/from-excel", s.wrap(RouteFromSpreadsheet, s.handleFromSpreadsheet))
		r.Post("/pdf/from-data", s.wrap(RouteFromOrder, s.handleFromOrder))
	})
}

// AddOrder seeds an order and returns its id. Monetary fields are derived
// from subtotal the way the service does it.
func (s *Server) AddOrder(name string, subtotal float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(name, subtotal)
}

// Order returns a copy of the stored order.
func (s *Server) Order(id int64) (api.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return api.Order{}, false
	}

	return *o, true
}

// OrderIDs returns the stored ids, newest first.
func (s *Server) OrderIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := slices.Collect(maps.Keys(s.orders))
	slices.Sort(ids)
	slices.Reverse(ids)

	return ids
}

// Calls reports how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[route]
}

// RevokeAll invalidates every issued token, so the next authenticated call
// answers 401.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	clear(s.tokens)
	s.mu.Unlock()
}

// FailNext makes the next request to route answer status with body.
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	s.faults[route] = append(s.faults[route], fault{status: status, body: body})
	s.mu.Unlock()
}

// HoldNext holds the next request to route until the returned gate is
// released. The response reflects the state at the time it was computed.
func (s *Server) HoldNext(route string) *Gate {
	g := &Gate{started: make(chan struct{}), release: make(chan struct{})}

	s.mu.Lock()
	s.gates[route] = append(s.gates[route], g)
	s.mu.Unlock()

	return g
}

// wrap counts the call and applies any queued fault or gate.
func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++

		var (
			f    *fault
			gate *Gate
		)

		if q := s.faults[route]; len(q) > 0 {
			f = &q[0]
			s.faults[route] = q[1:]
		}

		if q := s.gates[route]; len(q) > 0 {
			gate = q[0]
			s.gates[route] = q[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeDetail(w, f.status, f.body)
			return
		}

		if gate == nil {
			h(w, r)
			return
		}

		rec := httptest.NewRecorder()
		h(rec, r)
		close(gate.started)

		select {
		case <-gate.release:
		case <-r.Context().Done():
			return
		}

		maps.Copy(w.Header(), rec.Header())
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	}
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		_, known := s.tokens[tok]
		s.mu.Unlock()

		if !ok || !known {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	s.mu.Lock()
	want, exists := s.users[username]
	s.mu.Unlock()

	if !exists || want != password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	now := s.nowFunc()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        strconv.FormatInt(now.UnixNano(), 36),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.tokens[signed] = username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"access_token": signed, "token_type": "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	username := s.tokens[tok]
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.User{Username: username})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ids := slices.Collect(maps.Keys(s.orders))
	slices.Sort(ids)
	slices.Reverse(ids)

	out := make([]api.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.orders[id])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch api.OrderPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.withOrder(w, r, func(o *api.Order) {
		setIf(&o.Name, patch.Name)
		setIf(&o.Date, patch.Date)
		setIf(&o.Departure, patch.Departure)
		setIf(&o.Destination, patch.Destination)
		setIf(&o.OutboundTime, patch.OutboundTime)
		setIf(&o.ReturnTime, patch.ReturnTime)
		setIf(&o.Duration, patch.Duration)
		setIf(&o.Capacity, patch.Capacity)
		setIf(&o.PaymentDate, patch.PaymentDate)
	}, true)
}

func (s *Server) handleToggleDiscount(w http.ResponseWriter, r *http.Request) {
	s.withOrder(w, r, func(o *api.Order) {
		discount := 0.0
		if !o.HasDiscount() {
			discount = value(o.Subtotal) * discountRate
		}

		o.Discount = &discount
		recompute(o)
	}, false)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "amount must be a positive number")
		return
	}

	s.withOrder(w, r, func(o *api.Order) {
		paid := value(o.Paid) + amount
		o.Paid = &paid
		today := s.nowFunc().Format("2006-01-02")
		o.PaymentDate = &today
		recompute(o)
	}, false)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	_, exists := s.orders[id]
	delete(s.orders, id)
	s.mu.Unlock()

	if !exists {
		writeDetail(w, http.StatusNotFound, "Order not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFromSpreadsheet(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		writeDetail(w, http.StatusBadRequest, "Error: empty spreadsheet")
		return
	}

	name := strings.TrimSuffix(filepath.Base(hdr.Filename), filepath.Ext(hdr.Filename))

	s.mu.Lock()
	id := s.createLocked(name, float64(len(data)))
	s.mu.Unlock()

	writePDF(w, fmt.Sprintf("order %d from %s sheet %s", id, hdr.Filename, r.FormValue("sheet")))
}

func (s *Server) handleFromOrder(w http.ResponseWriter, r *http.Request) {
	var o api.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	writePDF(w, fmt.Sprintf("order %d for %s", o.ID, o.DisplayName()))
}

// withOrder runs fn on the order named in the path. When reply is true the
// updated order is returned, otherwise a short message.
func (s *Server) withOrder(w http.ResponseWriter, r *http.Request, fn func(*api.Order), reply bool) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	o, exists := s.orders[id]
	if exists {
		fn(o)
	}

	var snapshot api.Order
	if exists {
		snapshot = *o
	}
	s.mu.Unlock()

	if !exists {
		writeDetail(w, http.StatusNotFound, "Order not found")
		return
	}

	if reply {
		writeJSON(w, http.StatusOK, snapshot)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// createLocked stores a new order. Caller holds mu.
func (s *Server) createLocked(name string, subtotal float64) int64 {
	id := s.nextID
	s.nextID++

	zero := 0.0
	o := &api.Order{
		ID:        id,
		Name:      &name,
		Subtotal:  &subtotal,
		Discount:  &zero,
		Paid:      new(float64),
		CreatedAt: api.Timestamp{Time: s.nowFunc().UTC().Truncate(time.Microsecond)},
	}
	recompute(o)
	s.orders[id] = o

	return id
}

// recompute derives total and balance the way the service does.
func recompute(o *api.Order) {
	total := value(o.Subtotal) - value(o.Discount)
	balance := total - value(o.Paid)
	o.Total = &total
	o.Balance = &balance
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid order id")
		return 0, false
	}

	return id, true
}

func setIf(dst **string, v *string) {
	if v != nil {
		s := *v
		*dst = &s
	}
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}

	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writePDF(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "%PDF-1.4\n% "+content+"\n%%EOF\n")
}
