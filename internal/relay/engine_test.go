package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/models"
	"tg-relaybot/internal/storage"
)

// fakeStore is an in-memory Store with the same atomicity contract as the
// database-backed one: conditional writes under a single lock, conflicts
// reported as storage.ErrConflict.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	requests map[string]*models.ChatRequest
	sessions map[string]*models.ChatSession
	users    map[int64]*models.UserRecord
	messages []models.ChatMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests: make(map[string]*models.ChatRequest),
		sessions: make(map[string]*models.ChatSession),
		users:    make(map[int64]*models.UserRecord),
	}
}

func (s *fakeStore) addUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &models.UserRecord{ID: id, Name: name, InteractionMode: models.ModeIdle}
}

func (s *fakeStore) setMode(id int64, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].InteractionMode = mode
}

func (s *fakeStore) newID() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

func (s *fakeStore) CreateChatRequest(userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.UserID == userID && r.Status == models.RequestPending {
			return "", storage.ErrConflict
		}
	}
	id := s.newID()
	uid := userID
	s.requests[id] = &models.ChatRequest{ID: id, UserID: userID, Status: models.RequestPending, PendingUser: &uid}
	return id, nil
}

func (s *fakeStore) GetPendingRequest(userID int64) (*models.ChatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.UserID == userID && r.Status == models.RequestPending {
			copied := *r
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) GetRequest(id string) (*models.ChatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *fakeStore) AcceptRequest(id string, adminID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	if r.Status != models.RequestPending {
		return "", storage.ErrConflict
	}
	if s.hasActiveSessionLocked(adminID, r.UserID) {
		return "", storage.ErrConflict
	}
	r.Status = models.RequestAccepted
	r.PendingUser = nil
	return s.createSessionLocked(adminID, r.UserID), nil
}

func (s *fakeStore) DenyRequest(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Status != models.RequestPending {
		return storage.ErrConflict
	}
	r.Status = models.RequestDenied
	r.PendingUser = nil
	return nil
}

func (s *fakeStore) hasActiveSessionLocked(adminID, userID int64) bool {
	for _, sess := range s.sessions {
		if !sess.Active() {
			continue
		}
		if sess.AdminID == adminID || sess.TargetUserID == userID {
			return true
		}
	}
	return false
}

func (s *fakeStore) createSessionLocked(adminID, userID int64) string {
	id := s.newID()
	a, u := adminID, userID
	s.sessions[id] = &models.ChatSession{
		ID: id, AdminID: adminID, TargetUserID: userID,
		ActiveAdmin: &a, ActiveUser: &u,
	}
	return id
}

func (s *fakeStore) ActiveSessionForAdmin(adminID int64) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Active() && sess.AdminID == adminID {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) ActiveSessionForUser(userID int64) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Active() && sess.TargetUserID == userID {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) CreateDirectSession(adminID, targetUserID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasActiveSessionLocked(adminID, targetUserID) {
		return "", storage.ErrConflict
	}
	return s.createSessionLocked(adminID, targetUserID), nil
}

func (s *fakeStore) EndSession(adminID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Active() && sess.AdminID == adminID {
			now := time.Now()
			sess.EndedAt = &now
			sess.ActiveAdmin = nil
			sess.ActiveUser = nil
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) AppendMessage(sessionID string, fromAdmin bool, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, models.ChatMessage{SessionID: sessionID, FromAdmin: fromAdmin, Summary: summary})
	return nil
}

func (s *fakeStore) IsRegistered(userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *fakeStore) InteractionMode(userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return u.InteractionMode, nil
}

// fakeNotifier records notices and optionally fails per recipient.
type fakeNotifier struct {
	mu       sync.Mutex
	requests []int64
	accepted []int64
	denied   []int64
	started  []int64
	ended    []int64
	failFor  map[int64]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[int64]bool)}
}

func (n *fakeNotifier) record(list *[]int64, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[id] {
		return errors.New("notify failed")
	}
	*list = append(*list, id)
	return nil
}

func (n *fakeNotifier) ContactRequest(_ context.Context, adminID int64, _ string, _ Person) error {
	return n.record(&n.requests, adminID)
}

func (n *fakeNotifier) RequestAccepted(_ context.Context, userID int64, _ string, _ Person) error {
	return n.record(&n.accepted, userID)
}

func (n *fakeNotifier) RequestDenied(_ context.Context, userID int64) error {
	return n.record(&n.denied, userID)
}

func (n *fakeNotifier) SessionStarted(_ context.Context, userID int64, _ string, _ Person) error {
	return n.record(&n.started, userID)
}

func (n *fakeNotifier) SessionEnded(_ context.Context, userID int64, _ Person) error {
	return n.record(&n.ended, userID)
}

// fakeSender records sends and optionally fails per chat.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentItem
	failFor map[int64]error
}

type sentItem struct {
	chatID  int64
	content gateway.Content
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[int64]error)}
}

func (f *fakeSender) Send(_ context.Context, chatID int64, content gateway.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentItem{chatID: chatID, content: content})
	return nil
}

func (f *fakeSender) Forward(_ context.Context, chatID, fromChatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentItem{chatID: chatID, content: gateway.Content{Kind: gateway.KindOther, SourceChatID: fromChatID, MessageID: messageID}})
	return nil
}

const (
	adminID  = int64(1000)
	admin2ID = int64(1001)
	userID   = int64(42)
	user2ID  = int64(43)
)

func newTestEngine() (*Engine, *fakeStore, *fakeNotifier, *fakeSender) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	sender := newFakeSender()
	engine := &Engine{
		Store:    store,
		Gateway:  sender,
		Notifier: notifier,
		IsSudo: func(id int64) bool {
			return id == adminID || id == admin2ID
		},
		AdminIDs: []int64{adminID, admin2ID},
	}
	return engine, store, notifier, sender
}

func TestCreateRequest(t *testing.T) {
	engine, store, notifier, _ := newTestEngine()
	store.addUser(userID, "Alice")

	result, err := engine.CreateRequest(context.Background(), Person{ID: userID, Name: "Alice"})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if result.RequestID == "" {
		t.Fatal("expected a request id")
	}
	if result.AdminsNotified != 2 || result.AdminsTotal != 2 {
		t.Fatalf("expected 2/2 admins notified, got %d/%d", result.AdminsNotified, result.AdminsTotal)
	}
	if len(notifier.requests) != 2 {
		t.Fatalf("expected 2 admin notices, got %d", len(notifier.requests))
	}
}

func TestCreateRequestDuplicatePending(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")

	if _, err := engine.CreateRequest(context.Background(), Person{ID: userID}); err != nil {
		t.Fatalf("first CreateRequest: %v", err)
	}
	if _, err := engine.CreateRequest(context.Background(), Person{ID: userID}); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}
}

func TestCreateRequestConcurrent(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.CreateRequest(context.Background(), Person{ID: userID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyPending):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful create, got %d", succeeded)
	}
}

func TestCreateRequestPartialNotifyFailure(t *testing.T) {
	engine, store, notifier, _ := newTestEngine()
	store.addUser(userID, "Alice")
	notifier.failFor[adminID] = true

	result, err := engine.CreateRequest(context.Background(), Person{ID: userID})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if result.AdminsNotified != 1 || result.AdminsTotal != 2 {
		t.Fatalf("expected 1/2 admins notified, got %d/%d", result.AdminsNotified, result.AdminsTotal)
	}
}

func TestCreateRequestWhileInSession(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")
	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, userID); err != nil {
		t.Fatalf("StartDirectSession: %v", err)
	}

	if _, err := engine.CreateRequest(context.Background(), Person{ID: userID}); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("expected ErrAlreadyInSession, got %v", err)
	}
}

func TestAcceptRequest(t *testing.T) {
	engine, store, notifier, _ := newTestEngine()
	store.addUser(userID, "Alice")
	created, err := engine.CreateRequest(context.Background(), Person{ID: userID})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	result, err := engine.AcceptRequest(context.Background(), Person{ID: adminID, Name: "Bob"}, created.RequestID)
	if err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if result.TargetUserID != userID {
		t.Fatalf("expected target user %d, got %d", userID, result.TargetUserID)
	}
	if !result.UserNotified {
		t.Fatal("expected user to be notified")
	}
	if len(notifier.accepted) != 1 || notifier.accepted[0] != userID {
		t.Fatalf("expected acceptance notice to user %d, got %v", userID, notifier.accepted)
	}

	session, err := engine.SessionForAdmin(adminID)
	if err != nil {
		t.Fatalf("SessionForAdmin: %v", err)
	}
	if session.ID != result.SessionID {
		t.Fatalf("expected session %s, got %s", result.SessionID, session.ID)
	}
}

func TestAcceptRequestIdempotence(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")
	created, err := engine.CreateRequest(context.Background(), Person{ID: userID})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := engine.AcceptRequest(context.Background(), Person{ID: adminID}, created.RequestID); err != nil {
		t.Fatalf("first AcceptRequest: %v", err)
	}
	if _, err := engine.AcceptRequest(context.Background(), Person{ID: admin2ID}, created.RequestID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestAcceptRequestPermission(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")
	created, err := engine.CreateRequest(context.Background(), Person{ID: userID})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := engine.AcceptRequest(context.Background(), Person{ID: user2ID}, created.RequestID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestAcceptRequestAdminBusy(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")
	store.addUser(user2ID, "Carol")
	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, user2ID); err != nil {
		t.Fatalf("StartDirectSession: %v", err)
	}
	created, err := engine.CreateRequest(context.Background(), Person{ID: userID})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := engine.AcceptRequest(context.Background(), Person{ID: adminID}, created.RequestID); !errors.Is(err, ErrAdminBusy) {
		t.Fatalf("expected ErrAdminBusy, got %v", err)
	}
}

func TestDenyRequest(t *testing.T) {
	engine, store, notifier, _ := newTestEngine()
	store.addUser(userID, "Alice")
	created, err := engine.CreateRequest(context.Background(), Person{ID: userID})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	result, err := engine.DenyRequest(context.Background(), Person{ID: adminID}, created.RequestID)
	if err != nil {
		t.Fatalf("DenyRequest: %v", err)
	}
	if result.TargetUserID != userID || !result.UserNotified {
		t.Fatalf("unexpected deny result: %+v", result)
	}
	if len(notifier.denied) != 1 {
		t.Fatalf("expected 1 denial notice, got %d", len(notifier.denied))
	}

	// Terminal: denial does not open a session and a second deny reports
	// the request as processed.
	if _, err := engine.SessionForUser(userID); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected no session after deny, got %v", err)
	}
	if _, err := engine.DenyRequest(context.Background(), Person{ID: adminID}, created.RequestID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestStartDirectSessionUnknownUser(t *testing.T) {
	engine, _, _, _ := newTestEngine()

	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, userID); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestStartDirectSessionUserBusy(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")
	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, userID); err != nil {
		t.Fatalf("StartDirectSession: %v", err)
	}

	if _, err := engine.StartDirectSession(context.Background(), Person{ID: admin2ID}, userID); !errors.Is(err, ErrUserBusy) {
		t.Fatalf("expected ErrUserBusy, got %v", err)
	}
}

func TestStartDirectSessionAdminBusy(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.addUser(userID, "Alice")
	store.addUser(user2ID, "Carol")
	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, userID); err != nil {
		t.Fatalf("StartDirectSession: %v", err)
	}

	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, user2ID); !errors.Is(err, ErrAdminBusy) {
		t.Fatalf("expected ErrAdminBusy, got %v", err)
	}
}

func TestStartDirectSessionConcurrentSameAdmin(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	const targets = 8
	for i := 0; i < targets; i++ {
		store.addUser(int64(100+i), fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, targets)
	for i := 0; i < targets; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.StartDirectSession(context.Background(), Person{ID: adminID}, int64(100+i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAdminBusy):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one session for the admin, got %d", succeeded)
	}
}

func TestEndSession(t *testing.T) {
	engine, store, notifier, _ := newTestEngine()
	store.addUser(userID, "Alice")
	started, err := engine.StartDirectSession(context.Background(), Person{ID: adminID}, userID)
	if err != nil {
		t.Fatalf("StartDirectSession: %v", err)
	}

	result, err := engine.EndSession(context.Background(), Person{ID: adminID})
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if result.SessionID != started.SessionID || result.TargetUserID != userID {
		t.Fatalf("unexpected end result: %+v", result)
	}
	if len(notifier.ended) != 1 || notifier.ended[0] != userID {
		t.Fatalf("expected end notice to user %d, got %v", userID, notifier.ended)
	}

	if _, err := engine.EndSession(context.Background(), Person{ID: adminID}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}
