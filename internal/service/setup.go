package service

import (
	"tg-relaybot/internal/config"
	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/storage"
)

var (
	requestRepository *storage.RequestRepository
	sessionRepository *storage.SessionRepository
	userRepository    *storage.UserRepository
	globalConfig      *config.Config
)

// Initialize initializes the service with configuration
func Initialize(cfg *config.Config) {
	globalConfig = cfg
}

// InitRepositories initializes the repositories and migrates their tables
func InitRepositories() {
	if storage.DB == nil {
		logger.Warningf("Database not initialized, repositories unavailable")
		return
	}

	requestRepository = storage.NewRequestRepository(storage.DB)
	if err := requestRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating ChatRequest table: %v", err)
	}

	sessionRepository = storage.NewSessionRepository(storage.DB)
	if err := sessionRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating ChatSession tables: %v", err)
	}

	userRepository = storage.NewUserRepository(storage.DB)
	if err := userRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating UserRecord tables: %v", err)
	}
}
