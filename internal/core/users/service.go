package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultDiaryLimit is used when callers pass a non-positive limit
	DefaultDiaryLimit = 20
	maxDiaryLimit     = 100
)

type userService struct {
	userRepo UserRepository
}

// NewUserService creates a new user service
func NewUserService(userRepo UserRepository) UserService {
	if userRepo == nil {
		panic("users: userRepo is required")
	}
	return &userService{userRepo: userRepo}
}

func (s *userService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.userRepo.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

func (s *userService) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	conns, err := s.userRepo.ListConnections(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	if conns == nil {
		conns = []Connection{}
	}
	return conns, nil
}

// ListDiaryEntries clamps limit to (0, 100]; non-positive values use DefaultDiaryLimit.
func (s *userService) ListDiaryEntries(ctx context.Context, userID string, limit int) ([]DiaryEntry, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultDiaryLimit
	}
	if limit > maxDiaryLimit {
		limit = maxDiaryLimit
	}
	entries, err := s.userRepo.ListDiaryEntries(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diary entries: %w", err)
	}
	if entries == nil {
		entries = []DiaryEntry{}
	}
	return entries, nil
}

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return "", &InvalidUserIDError{UserID: userID}
	}
	return parsed.String(), nil
}
