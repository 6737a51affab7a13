package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MockClient is a test double for the Client interface.
type MockClient struct {
	Identity    *CallerIdentity
	IdentityErr error
	Denied      map[string]bool // action → denied
	AccessErr   error
	Objects     map[string][]byte // location → content
	OpenErr     error

	mu        sync.Mutex
	OpenCalls []string
}

// NewMockClient creates a new MockClient with default values.
func NewMockClient() *MockClient {
	return &MockClient{
		Identity: &CallerIdentity{
			Account: "123456789012",
			ARN:     "arn:aws:iam::123456789012:user/test",
			UserID:  "AIDA12345",
		},
		Denied:  make(map[string]bool),
		Objects: make(map[string][]byte),
	}
}

func (m *MockClient) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	return m.Identity, m.IdentityErr
}

func (m *MockClient) CheckAccess(_ context.Context, action, _ string) (bool, error) {
	if m.AccessErr != nil {
		return false, m.AccessErr
	}
	return !m.Denied[action], nil
}

func (m *MockClient) Open(_ context.Context, location string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.OpenCalls = append(m.OpenCalls, location)
	m.mu.Unlock()

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	data, ok := m.Objects[location]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", location, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
