package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// memStore is an in-memory repository.Store. ExecTx serializes transactions
// with a mutex, which models the row locking the Postgres store relies on:
// two transactions touching the same car never interleave. A snapshot taken
// before the callback is restored on error, giving rollback semantics.
type memStore struct {
	mu sync.Mutex
	st *memState

	// tripConflicts makes the next N trip inserts fail with ErrTripExists,
	// the way a lost race on the active-per-chat unique index does. Not
	// part of the snapshot: a consumed conflict stays consumed across a
	// rollback.
	tripConflicts int
}

type memState struct {
	nextTripID int64
	nextReqID  int64
	trips      map[int64]*models.Trip
	cars       map[int64]map[int]*models.Car
	members    map[int64]map[int]map[int64]*models.Membership
	requests   map[int64]*models.JoinRequest
	users      map[int64]*models.User
}

func newMemStore() *memStore {
	return &memStore{st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		trips:    make(map[int64]*models.Trip),
		cars:     make(map[int64]map[int]*models.Car),
		members:  make(map[int64]map[int]map[int64]*models.Membership),
		requests: make(map[int64]*models.JoinRequest),
		users:    make(map[int64]*models.User),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextTripID = s.nextTripID
	c.nextReqID = s.nextReqID
	for id, t := range s.trips {
		cp := *t
		c.trips[id] = &cp
	}
	for tripID, cars := range s.cars {
		c.cars[tripID] = make(map[int]*models.Car, len(cars))
		for id, car := range cars {
			cp := *car
			c.cars[tripID][id] = &cp
		}
	}
	for tripID, byCar := range s.members {
		c.members[tripID] = make(map[int]map[int64]*models.Membership, len(byCar))
		for carID, byUser := range byCar {
			c.members[tripID][carID] = make(map[int64]*models.Membership, len(byUser))
			for uid, m := range byUser {
				cp := *m
				c.members[tripID][carID][uid] = &cp
			}
		}
	}
	for id, r := range s.requests {
		cp := *r
		if r.ResolvedAt != nil {
			t := *r.ResolvedAt
			cp.ResolvedAt = &t
		}
		c.requests[id] = &cp
	}
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	return c
}

func (s *memStore) ExecTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(s.repos()); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *memStore) Repos() repository.Repositories {
	return s.repos()
}

func (s *memStore) repos() repository.Repositories {
	return repository.Repositories{
		Trips:    memTripRepo{s},
		Cars:     memCarRepo{s},
		Members:  memMemberRepo{s},
		Requests: memRequestRepo{s},
		Users:    memUserRepo{s},
	}
}

// ---------------------------------------------------------------------------
// Trips
// ---------------------------------------------------------------------------

type memTripRepo struct{ s *memStore }

func (r memTripRepo) Create(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	st := r.s.st
	if r.s.tripConflicts > 0 {
		r.s.tripConflicts--
		return nil, models.ErrTripExists
	}
	for _, t := range st.trips {
		if t.ChatID == trip.ChatID && t.Active {
			return nil, models.ErrTripExists
		}
	}
	st.nextTripID++
	cp := *trip
	cp.ID = st.nextTripID
	cp.Active = true
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	st.trips[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memTripRepo) GetActiveByChatID(ctx context.Context, chatID int64) (*models.Trip, error) {
	for _, t := range r.s.st.trips {
		if t.ChatID == chatID && t.Active {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memTripRepo) GetActiveByChatIDForUpdate(ctx context.Context, chatID int64) (*models.Trip, error) {
	return r.GetActiveByChatID(ctx, chatID)
}

func (r memTripRepo) Rename(ctx context.Context, id int64, name string) error {
	t, ok := r.s.st.trips[id]
	if !ok {
		return fmt.Errorf("trip %d not found", id)
	}
	t.Name = name
	t.UpdatedAt = time.Now()
	return nil
}

func (r memTripRepo) Delete(ctx context.Context, id int64) error {
	st := r.s.st
	delete(st.trips, id)
	delete(st.cars, id)
	delete(st.members, id)
	for reqID, req := range st.requests {
		if req.TripID == id {
			delete(st.requests, reqID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Cars
// ---------------------------------------------------------------------------

type memCarRepo struct{ s *memStore }

func (r memCarRepo) Create(ctx context.Context, car *models.Car) (*models.Car, error) {
	st := r.s.st
	if st.cars[car.TripID] == nil {
		st.cars[car.TripID] = make(map[int]*models.Car)
	}
	if _, exists := st.cars[car.TripID][car.ID]; exists {
		return nil, fmt.Errorf("car %d already exists on trip %d", car.ID, car.TripID)
	}
	cp := *car
	cp.CreatedAt = time.Now()
	st.cars[car.TripID][car.ID] = &cp
	out := cp
	return &out, nil
}

func (r memCarRepo) GetByID(ctx context.Context, tripID int64, carID int) (*models.Car, error) {
	car, ok := r.s.st.cars[tripID][carID]
	if !ok {
		return nil, nil
	}
	cp := *car
	return &cp, nil
}

func (r memCarRepo) GetByIDForUpdate(ctx context.Context, tripID int64, carID int) (*models.Car, error) {
	return r.GetByID(ctx, tripID, carID)
}

func (r memCarRepo) GetByOwner(ctx context.Context, tripID, ownerID int64) (*models.Car, error) {
	for _, car := range r.s.st.cars[tripID] {
		if car.OwnerID == ownerID {
			cp := *car
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memCarRepo) ListStatuses(ctx context.Context, tripID int64) ([]*models.CarStatus, error) {
	st := r.s.st
	ids, err := r.UsedIDs(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var out []*models.CarStatus
	for _, id := range ids {
		car := st.cars[tripID][id]
		members, _ := memMemberRepo{r.s}.ListUserIDs(ctx, tripID, id)
		pending := 0
		for _, req := range st.requests {
			if req.TripID == tripID && req.CarID == id && req.IsPending() {
				pending++
			}
		}
		occupied := models.Occupancy(len(members))
		out = append(out, &models.CarStatus{
			Car:            *car,
			Members:        members,
			PendingCount:   pending,
			OccupiedSeats:  occupied,
			AvailableSeats: car.Seats - occupied,
		})
	}
	return out, nil
}

func (r memCarRepo) UsedIDs(ctx context.Context, tripID int64) ([]int, error) {
	var ids []int
	for id := range r.s.st.cars[tripID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (r memCarRepo) UpdateSeats(ctx context.Context, tripID int64, carID, seats int) error {
	car, ok := r.s.st.cars[tripID][carID]
	if !ok {
		return fmt.Errorf("car %d not found on trip %d", carID, tripID)
	}
	car.Seats = seats
	return nil
}

func (r memCarRepo) Delete(ctx context.Context, tripID int64, carID int) error {
	st := r.s.st
	delete(st.cars[tripID], carID)
	if st.members[tripID] != nil {
		delete(st.members[tripID], carID)
	}
	for reqID, req := range st.requests {
		if req.TripID == tripID && req.CarID == carID {
			delete(st.requests, reqID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Memberships
// ---------------------------------------------------------------------------

type memMemberRepo struct{ s *memStore }

func (r memMemberRepo) Create(ctx context.Context, m *models.Membership) (*models.Membership, error) {
	st := r.s.st
	if st.members[m.TripID] == nil {
		st.members[m.TripID] = make(map[int]map[int64]*models.Membership)
	}
	if st.members[m.TripID][m.CarID] == nil {
		st.members[m.TripID][m.CarID] = make(map[int64]*models.Membership)
	}
	cp := *m
	cp.JoinedAt = time.Now()
	st.members[m.TripID][m.CarID][m.UserID] = &cp
	out := cp
	return &out, nil
}

func (r memMemberRepo) Get(ctx context.Context, tripID int64, carID int, userID int64) (*models.Membership, error) {
	m, ok := r.s.st.members[tripID][carID][userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r memMemberRepo) GetByUser(ctx context.Context, tripID, userID int64) (*models.Membership, error) {
	for _, byUser := range r.s.st.members[tripID] {
		if m, ok := byUser[userID]; ok {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memMemberRepo) ListUserIDs(ctx context.Context, tripID int64, carID int) ([]int64, error) {
	byUser := r.s.st.members[tripID][carID]
	ms := make([]*models.Membership, 0, len(byUser))
	for _, m := range byUser {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
			return ms[i].UserID < ms[j].UserID
		}
		return ms[i].JoinedAt.Before(ms[j].JoinedAt)
	})
	ids := make([]int64, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (r memMemberRepo) Count(ctx context.Context, tripID int64, carID int) (int, error) {
	return len(r.s.st.members[tripID][carID]), nil
}

func (r memMemberRepo) Delete(ctx context.Context, tripID int64, carID int, userID int64) error {
	if _, ok := r.s.st.members[tripID][carID][userID]; !ok {
		return fmt.Errorf("car %d, user %d: %w", carID, userID, models.ErrNotAMember)
	}
	delete(r.s.st.members[tripID][carID], userID)
	return nil
}

// ---------------------------------------------------------------------------
// Join requests
// ---------------------------------------------------------------------------

type memRequestRepo struct{ s *memStore }

func (r memRequestRepo) Create(ctx context.Context, req *models.JoinRequest) (*models.JoinRequest, error) {
	st := r.s.st
	st.nextReqID++
	cp := *req
	cp.ID = st.nextReqID
	cp.Status = models.RequestStatusPending
	cp.RequestedAt = time.Now()
	st.requests[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memRequestRepo) GetPending(ctx context.Context, tripID int64, carID int, userID int64) (*models.JoinRequest, error) {
	for _, req := range r.s.st.requests {
		if req.TripID == tripID && req.CarID == carID && req.UserID == userID && req.IsPending() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memRequestRepo) GetPendingByUser(ctx context.Context, tripID, userID int64) (*models.JoinRequest, error) {
	for _, req := range r.s.st.requests {
		if req.TripID == tripID && req.UserID == userID && req.IsPending() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memRequestRepo) GetLatest(ctx context.Context, tripID int64, carID int, userID int64) (*models.JoinRequest, error) {
	var latest *models.JoinRequest
	for _, req := range r.s.st.requests {
		if req.TripID != tripID || req.CarID != carID || req.UserID != userID {
			continue
		}
		if latest == nil || req.ID > latest.ID {
			latest = req
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r memRequestRepo) Resolve(ctx context.Context, id int64, status models.RequestStatus) error {
	req, ok := r.s.st.requests[id]
	if !ok || !req.IsPending() {
		return fmt.Errorf("join request %d is not pending", id)
	}
	now := time.Now()
	req.Status = status
	req.ResolvedAt = &now
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	cp := *user
	cp.UpdatedAt = time.Now()
	if existing, ok := r.s.st.users[user.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = cp.UpdatedAt
	}
	r.s.st.users[user.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range r.s.st.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func newTestService() (*Service, *recordingDispatcher) {
	svc, _, d := newTestServiceStore()
	return svc, d
}

func newTestServiceStore() (*Service, *memStore, *recordingDispatcher) {
	d := &recordingDispatcher{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := newMemStore()
	return New(store, d, logger), store, d
}

// recordingDispatcher captures events in delivery order.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
}

func (d *recordingDispatcher) Notify(ctx context.Context, e Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) kinds() []EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]EventKind, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Kind)
	}
	return out
}

func (d *recordingDispatcher) count(kind EventKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
