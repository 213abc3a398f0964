package services

import (
	"context"
	"fmt"
	"sync"
)

// MockUserInfo serves canned Auth0 profiles keyed by access token
type MockUserInfo struct {
	mu       sync.RWMutex
	profiles map[string]*Auth0UserInfo
}

func NewMockUserInfo() *MockUserInfo {
	return &MockUserInfo{profiles: make(map[string]*Auth0UserInfo)}
}

// Add registers the profile returned for token
func (m *MockUserInfo) Add(token string, info Auth0UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[token] = &info
}

func (m *MockUserInfo) GetUserInfo(_ context.Context, accessToken string) (*Auth0UserInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.profiles[accessToken]
	if !ok {
		return nil, fmt.Errorf("userinfo endpoint returned status 401: unknown token")
	}
	copied := *info
	return &copied, nil
}
