package relay

import (
	"context"
	"errors"
	"fmt"

	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/models"
	"tg-relaybot/internal/storage"
)

// policy violations reported back to the invoking user or admin
var (
	ErrAlreadyPending   = errors.New("user already has a pending contact request")
	ErrAlreadyInSession = errors.New("user already has an active chat session")
	ErrAdminBusy        = errors.New("admin already has an active chat session")
	ErrUserBusy         = errors.New("target user is already in a chat session")
	ErrPermissionDenied = errors.New("caller is not a sudo user")
	ErrUnknownUser      = errors.New("target user is not registered")
	ErrNotFound         = errors.New("contact request not found")
	ErrAlreadyProcessed = errors.New("contact request already processed")
	ErrNoActiveSession  = errors.New("no active chat session")
)

// DeliveryError wraps a gateway failure while relaying a message. The
// session stays active; the caller surfaces the failure to the sender.
type DeliveryError struct {
	PeerID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver to %d: %v", e.PeerID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Person identifies a message sender or actor.
type Person struct {
	ID       int64
	Name     string
	Username string
}

// Store is the persistence capability the engine orchestrates. Every
// mutating call must be atomic with its precondition check; the engine
// never assumes it can lock, because two bot runtimes share the store.
// Conflicting writes surface as storage.ErrConflict and missing records
// as storage.ErrNotFound.
type Store interface {
	CreateChatRequest(userID int64) (string, error)
	GetPendingRequest(userID int64) (*models.ChatRequest, error)
	GetRequest(id string) (*models.ChatRequest, error)
	AcceptRequest(id string, adminID int64) (string, error)
	DenyRequest(id string) error
	ActiveSessionForAdmin(adminID int64) (*models.ChatSession, error)
	ActiveSessionForUser(userID int64) (*models.ChatSession, error)
	CreateDirectSession(adminID, targetUserID int64) (string, error)
	EndSession(adminID int64) (int64, error)
	AppendMessage(sessionID string, fromAdmin bool, summary string) error
	IsRegistered(userID int64) (bool, error)
	InteractionMode(userID int64) (string, error)
}

// Notifier delivers the human-facing notices that accompany state
// transitions. Failures are soft: the transition is authoritative once
// persisted, so notifier errors are reported but never rolled back.
type Notifier interface {
	ContactRequest(ctx context.Context, adminID int64, requestID string, from Person) error
	RequestAccepted(ctx context.Context, userID int64, sessionID string, admin Person) error
	RequestDenied(ctx context.Context, userID int64) error
	SessionStarted(ctx context.Context, userID int64, sessionID string, admin Person) error
	SessionEnded(ctx context.Context, userID int64, admin Person) error
}

// Engine owns the contact-request and chat-session state machines and
// routes relayed messages to the correct peer.
type Engine struct {
	Store    Store
	Gateway  gateway.Sender
	Notifier Notifier
	IsSudo   func(userID int64) bool
	AdminIDs []int64
}

// CreateResult reports a created contact request and how many of the
// configured admins could be notified about it.
type CreateResult struct {
	RequestID      string
	AdminsNotified int
	AdminsTotal    int
}

// CreateRequest persists a pending contact request for the user and fans
// the notification out to every configured admin. Each admin send is
// isolated: one failing admin chat never aborts the others.
func (e *Engine) CreateRequest(ctx context.Context, user Person) (*CreateResult, error) {
	if _, err := e.Store.GetPendingRequest(user.ID); err == nil {
		return nil, ErrAlreadyPending
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking pending request: %w", err)
	}

	if _, err := e.Store.ActiveSessionForUser(user.ID); err == nil {
		return nil, ErrAlreadyInSession
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking active session: %w", err)
	}

	requestID, err := e.Store.CreateChatRequest(user.ID)
	if err != nil {
		// The store is the serialization point: a concurrent create from
		// the other runtime shows up here as a conflict.
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrAlreadyPending
		}
		return nil, fmt.Errorf("creating chat request: %w", err)
	}

	result := &CreateResult{RequestID: requestID, AdminsTotal: len(e.AdminIDs)}
	for _, adminID := range e.AdminIDs {
		if err := e.Notifier.ContactRequest(ctx, adminID, requestID, user); err != nil {
			logger.Errorf("Failed to send contact request %s to admin %d: %v", requestID, adminID, err)
			continue
		}
		result.AdminsNotified++
	}

	logger.Infof("Contact request created: %s for user %d", requestID, user.ID)
	return result, nil
}

// AcceptResult reports an accepted request and whether the requesting
// user could be notified that the session is live.
type AcceptResult struct {
	SessionID    string
	TargetUserID int64
	UserNotified bool
}

// AcceptRequest transitions a pending request to accepted and creates the
// chat session, atomically from the engine's perspective.
func (e *Engine) AcceptRequest(ctx context.Context, admin Person, requestID string) (*AcceptResult, error) {
	if !e.IsSudo(admin.ID) {
		return nil, ErrPermissionDenied
	}

	request, err := e.Store.GetRequest(requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading chat request: %w", err)
	}
	if request.Status != models.RequestPending {
		return nil, ErrAlreadyProcessed
	}

	if _, err := e.Store.ActiveSessionForAdmin(admin.ID); err == nil {
		return nil, ErrAdminBusy
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking admin session: %w", err)
	}

	sessionID, err := e.Store.AcceptRequest(requestID, admin.ID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, e.disambiguateAcceptConflict(requestID)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accepting chat request: %w", err)
	}

	result := &AcceptResult{SessionID: sessionID, TargetUserID: request.UserID, UserNotified: true}
	if err := e.Notifier.RequestAccepted(ctx, request.UserID, sessionID, admin); err != nil {
		logger.Errorf("Failed to notify user %d about accepted chat: %v", request.UserID, err)
		result.UserNotified = false
	}

	logger.Infof("Chat request %s accepted by admin %d, session %s", requestID, admin.ID, sessionID)
	return result, nil
}

// disambiguateAcceptConflict decides which precondition lost the race:
// the request was processed by another admin, or this admin (or the
// target user) acquired a session between our check and the write.
func (e *Engine) disambiguateAcceptConflict(requestID string) error {
	request, err := e.Store.GetRequest(requestID)
	if err == nil && request.Status != models.RequestPending {
		return ErrAlreadyProcessed
	}
	return ErrAdminBusy
}

// DenyResult reports a denied request and whether the requesting user
// could be notified.
type DenyResult struct {
	TargetUserID int64
	UserNotified bool
}

// DenyRequest transitions a pending request to denied. Terminal; no
// session is created.
func (e *Engine) DenyRequest(ctx context.Context, admin Person, requestID string) (*DenyResult, error) {
	if !e.IsSudo(admin.ID) {
		return nil, ErrPermissionDenied
	}

	request, err := e.Store.GetRequest(requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading chat request: %w", err)
	}
	if request.Status != models.RequestPending {
		return nil, ErrAlreadyProcessed
	}

	if err := e.Store.DenyRequest(requestID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("denying chat request: %w", err)
	}

	result := &DenyResult{TargetUserID: request.UserID, UserNotified: true}
	if err := e.Notifier.RequestDenied(ctx, request.UserID); err != nil {
		logger.Errorf("Failed to notify user %d about denied chat: %v", request.UserID, err)
		result.UserNotified = false
	}

	logger.Infof("Chat request %s denied by admin %d", requestID, admin.ID)
	return result, nil
}

// SessionResult reports a directly started session.
type SessionResult struct {
	SessionID    string
	UserNotified bool
}

// StartDirectSession creates a chat session with a registered user,
// bypassing the request flow.
func (e *Engine) StartDirectSession(ctx context.Context, admin Person, targetUserID int64) (*SessionResult, error) {
	if !e.IsSudo(admin.ID) {
		return nil, ErrPermissionDenied
	}

	registered, err := e.Store.IsRegistered(targetUserID)
	if err != nil {
		return nil, fmt.Errorf("checking user registration: %w", err)
	}
	if !registered {
		return nil, ErrUnknownUser
	}

	if _, err := e.Store.ActiveSessionForAdmin(admin.ID); err == nil {
		return nil, ErrAdminBusy
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking admin session: %w", err)
	}
	if _, err := e.Store.ActiveSessionForUser(targetUserID); err == nil {
		return nil, ErrUserBusy
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking user session: %w", err)
	}

	sessionID, err := e.Store.CreateDirectSession(admin.ID, targetUserID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			if _, adminErr := e.Store.ActiveSessionForAdmin(admin.ID); adminErr == nil {
				return nil, ErrAdminBusy
			}
			return nil, ErrUserBusy
		}
		return nil, fmt.Errorf("creating direct session: %w", err)
	}

	result := &SessionResult{SessionID: sessionID, UserNotified: true}
	if err := e.Notifier.SessionStarted(ctx, targetUserID, sessionID, admin); err != nil {
		logger.Errorf("Failed to notify user %d about started session: %v", targetUserID, err)
		result.UserNotified = false
	}

	logger.Infof("Direct session %s started: admin %d -> user %d", sessionID, admin.ID, targetUserID)
	return result, nil
}

// EndResult reports an ended session.
type EndResult struct {
	SessionID    string
	TargetUserID int64
	UserNotified bool
}

// EndSession marks the admin's active session ended and notifies the
// target user.
func (e *Engine) EndSession(ctx context.Context, admin Person) (*EndResult, error) {
	if !e.IsSudo(admin.ID) {
		return nil, ErrPermissionDenied
	}

	session, err := e.Store.ActiveSessionForAdmin(admin.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("loading admin session: %w", err)
	}

	modified, err := e.Store.EndSession(admin.ID)
	if err != nil {
		return nil, fmt.Errorf("ending session: %w", err)
	}
	if modified == 0 {
		// Raced with the other runtime; the session is already gone.
		return nil, ErrNoActiveSession
	}

	result := &EndResult{SessionID: session.ID, TargetUserID: session.TargetUserID, UserNotified: true}
	if err := e.Notifier.SessionEnded(ctx, session.TargetUserID, admin); err != nil {
		logger.Errorf("Failed to notify user %d about ended chat: %v", session.TargetUserID, err)
		result.UserNotified = false
	}

	logger.Infof("Session %s ended by admin %d", session.ID, admin.ID)
	return result, nil
}

// PendingRequest returns the user's pending request if one exists.
func (e *Engine) PendingRequest(userID int64) (*models.ChatRequest, error) {
	request, err := e.Store.GetPendingRequest(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return request, err
}

// SessionForUser returns the session in which the user is the target.
func (e *Engine) SessionForUser(userID int64) (*models.ChatSession, error) {
	session, err := e.Store.ActiveSessionForUser(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	return session, err
}

// SessionForAdmin returns the admin's active session.
func (e *Engine) SessionForAdmin(adminID int64) (*models.ChatSession, error) {
	session, err := e.Store.ActiveSessionForAdmin(adminID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	return session, err
}
