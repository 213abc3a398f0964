package services

import (
	"context"
	"fmt"
	"sync"
)

// MockS3Service is an in-memory ObjectStore for tests
type MockS3Service struct {
	objects map[string]mockObject
	mu      sync.RWMutex
	// FailPut makes every PutObject fail, to exercise upload error paths
	FailPut bool
}

type mockObject struct {
	body        []byte
	contentType string
}

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{objects: make(map[string]mockObject)}
}

func (m *MockS3Service) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	if m.FailPut {
		return fmt.Errorf("mock S3 put failure for %s", key)
	}
	m.mu.Lock()
	m.objects[key] = mockObject{body: append([]byte(nil), body...), contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MockS3Service) PresignGet(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("file not found in mock S3: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

func (m *MockS3Service) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// FileExists checks if an object exists in mock storage
func (m *MockS3Service) FileExists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[key]
	return exists
}

// ContentType returns the stored content type of key
func (m *MockS3Service) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

// Keys returns every stored key
func (m *MockS3Service) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes all objects from mock storage
func (m *MockS3Service) Clear() {
	m.mu.Lock()
	m.objects = make(map[string]mockObject)
	m.mu.Unlock()
}
