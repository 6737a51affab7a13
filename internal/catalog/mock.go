package catalog

import (
	"context"
	"fmt"
	"sync"
)

// MockCatalog is a test double for the Catalog interface. Its maps must not
// be modified once a collection is running.
type MockCatalog struct {
	Namespaces        []string
	Tables            map[string][]string        // namespace → table names
	Locations         map[TableIdentifier]string // table → metadata location
	ListNamespacesErr error
	ListTablesErr     map[string]error // namespace → error
	LocationErr       map[TableIdentifier]error

	mu            sync.Mutex
	LocationCalls []TableIdentifier
}

// NewMockCatalog creates an empty MockCatalog.
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		Tables:        make(map[string][]string),
		Locations:     make(map[TableIdentifier]string),
		ListTablesErr: make(map[string]error),
		LocationErr:   make(map[TableIdentifier]error),
	}
}

// AddTable registers a table and its metadata location.
func (m *MockCatalog) AddTable(namespace, table, location string) TableIdentifier {
	found := false
	for _, ns := range m.Namespaces {
		if ns == namespace {
			found = true
			break
		}
	}
	if !found {
		m.Namespaces = append(m.Namespaces, namespace)
	}
	m.Tables[namespace] = append(m.Tables[namespace], table)
	id := TableIdentifier{Namespace: namespace, Name: table}
	m.Locations[id] = location
	return id
}

func (m *MockCatalog) ListNamespaces(_ context.Context) ([]Namespace, error) {
	if m.ListNamespacesErr != nil {
		return nil, newError("list namespaces", "", ErrCatalogUnavailable, m.ListNamespacesErr)
	}
	out := make([]Namespace, len(m.Namespaces))
	for i, ns := range m.Namespaces {
		out[i] = Namespace{Name: ns}
	}
	return out, nil
}

func (m *MockCatalog) ListTables(_ context.Context, namespace string) ([]TableIdentifier, error) {
	if err, ok := m.ListTablesErr[namespace]; ok {
		return nil, err
	}
	var out []TableIdentifier
	for _, name := range m.Tables[namespace] {
		out = append(out, TableIdentifier{Namespace: namespace, Name: name})
	}
	return out, nil
}

func (m *MockCatalog) MetadataLocation(_ context.Context, table TableIdentifier) (string, error) {
	m.mu.Lock()
	m.LocationCalls = append(m.LocationCalls, table)
	m.mu.Unlock()

	if err, ok := m.LocationErr[table]; ok {
		return "", err
	}
	loc, ok := m.Locations[table]
	if !ok {
		return "", newError("get metadata location", table.String(), ErrTableNotFound, fmt.Errorf("no such table"))
	}
	return loc, nil
}
