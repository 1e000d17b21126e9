package service

import (
	"tg-relaybot/internal/models"
)

// SessionStore exposes the persistence capabilities consumed by the chat
// relay and broadcast engines, delegating to the gorm repositories. Every
// mutating operation is a single store-level atomic update; the two bot
// runtimes rely on that instead of in-process locks.
type SessionStore struct{}

// NewSessionStore returns the store facade. InitRepositories must have
// been called first.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

func (s *SessionStore) CreateChatRequest(userID int64) (string, error) {
	return requestRepository.CreatePending(userID)
}

func (s *SessionStore) GetPendingRequest(userID int64) (*models.ChatRequest, error) {
	return requestRepository.GetPendingByUser(userID)
}

func (s *SessionStore) GetRequest(id string) (*models.ChatRequest, error) {
	return requestRepository.GetByID(id)
}

func (s *SessionStore) AcceptRequest(id string, adminID int64) (string, error) {
	return requestRepository.Accept(id, adminID)
}

func (s *SessionStore) DenyRequest(id string) error {
	return requestRepository.Deny(id)
}

func (s *SessionStore) ActiveSessionForAdmin(adminID int64) (*models.ChatSession, error) {
	return sessionRepository.ActiveForAdmin(adminID)
}

func (s *SessionStore) ActiveSessionForUser(userID int64) (*models.ChatSession, error) {
	return sessionRepository.ActiveForUser(userID)
}

func (s *SessionStore) CreateDirectSession(adminID, targetUserID int64) (string, error) {
	return sessionRepository.CreateDirect(adminID, targetUserID)
}

func (s *SessionStore) EndSession(adminID int64) (int64, error) {
	return sessionRepository.End(adminID)
}

func (s *SessionStore) AppendMessage(sessionID string, fromAdmin bool, summary string) error {
	return sessionRepository.AppendMessage(sessionID, fromAdmin, summary)
}

func (s *SessionStore) IsRegistered(userID int64) (bool, error) {
	return userRepository.IsRegistered(userID)
}

func (s *SessionStore) InteractionMode(userID int64) (string, error) {
	record, err := userRepository.GetByID(userID)
	if err != nil {
		return "", err
	}
	return record.InteractionMode, nil
}

func (s *SessionStore) ListAllUsers() ([]models.UserRecord, error) {
	return userRepository.ListAll()
}

func (s *SessionStore) DeleteUser(userID int64) error {
	return userRepository.Delete(userID)
}

// RegisterUser upserts the user record on /start.
func RegisterUser(userID int64, name, username string) error {
	return userRepository.Upsert(userID, name, username)
}

// SetInteractionMode flips a user between idle and configuring.
func SetInteractionMode(userID int64, mode string) error {
	return userRepository.SetInteractionMode(userID, mode)
}

// UserCount returns the number of registered users.
func UserCount() (int64, error) {
	return userRepository.Count()
}

// ActiveSessions lists all live chat sessions for the admin overview.
func ActiveSessions() ([]models.ChatSession, error) {
	return sessionRepository.ListActive()
}
