package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"quantbroker/internal/domain"
)

// fakeStore speaks the crypto venue payload shape.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]domain.Payload
	nextID    int
	balance   domain.Payload
	positions []domain.Payload

	connectErrs []error // consumed one per Connect call
	createErr   error
	createReply domain.Payload // replaces the default open/unfilled state
	connected   atomic.Bool
	connects    atomic.Int32
	events      chan domain.Payload
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[string]domain.Payload),
		balance: domain.Payload{"free": "10000", "total": "10000"},
		events:  make(chan domain.Payload, 16),
	}
}

func (s *fakeStore) Connect(ctx context.Context) error {
	s.connects.Add(1)
	s.mu.Lock()
	var err error
	if len(s.connectErrs) > 0 {
		err, s.connectErrs = s.connectErrs[0], s.connectErrs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.connected.Store(true)
	return nil
}

func (s *fakeStore) Close() error {
	s.connected.Store(false)
	return nil
}

func (s *fakeStore) Connected() bool { return s.connected.Load() }

func (s *fakeStore) CreateOrder(ctx context.Context, req domain.Payload) (domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	o := domain.Payload{}
	for k, v := range req {
		o[k] = v
	}
	o["id"] = fmt.Sprintf("V%d", s.nextID)
	if s.createReply != nil {
		for k, v := range s.createReply {
			o[k] = v
		}
	} else {
		o["status"] = "open"
		o["filled"] = "0"
	}
	s.orders[stringOf(req["clientOrderId"])] = o
	return copyPayload(o), nil
}

func (s *fakeStore) CancelOrder(ctx context.Context, req domain.Payload) (domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[stringOf(req["clientOrderId"])]
	if !ok {
		return nil, &domain.VenueError{Code: "404", Message: "order not found"}
	}
	if o["status"] == "open" {
		o["status"] = "canceled"
	}
	return copyPayload(o), nil
}

func (s *fakeStore) FetchOrder(ctx context.Context, req domain.Payload) (domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[stringOf(req["clientOrderId"])]
	if !ok {
		return nil, &domain.VenueError{Code: "404", Message: "order not found"}
	}
	return copyPayload(o), nil
}

func (s *fakeStore) FetchBalance(ctx context.Context) (domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPayload(s.balance), nil
}

func (s *fakeStore) Positions(ctx context.Context) ([]domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Payload, len(s.positions))
	for i, p := range s.positions {
		out[i] = copyPayload(p)
	}
	return out, nil
}

func (s *fakeStore) Events() <-chan domain.Payload { return s.events }

// fill marks the venue order of clientID as filled up to filled at avg.
func (s *fakeStore) fill(clientID string, filled, avg float64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[clientID]
	o["filled"] = filled
	o["average"] = avg
	o["status"] = status
}

func (s *fakeStore) setBalance(free, total string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = domain.Payload{"free": free, "total": total}
}

func (s *fakeStore) setPositions(p ...domain.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = p
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func copyPayload(p domain.Payload) domain.Payload {
	out := make(domain.Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

var errDial = errors.New("dial refused")
