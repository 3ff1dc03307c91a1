package users

import "context"

// UserRepository reads the profile, friendship and diary tables of the platform.
type UserRepository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// ListConnections returns accepted friendships of userID, ordered by
	// friendship level and then username. An empty slice is not an error.
	ListConnections(ctx context.Context, userID string) ([]Connection, error)

	// ListDiaryEntries returns the newest non-private entries, newest first.
	ListDiaryEntries(ctx context.Context, userID string, limit int) ([]DiaryEntry, error)
}

// UserService defines the interface for user business logic
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
	ListDiaryEntries(ctx context.Context, userID string, limit int) ([]DiaryEntry, error)
}
