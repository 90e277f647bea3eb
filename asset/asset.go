// Package asset holds files bundled into the binary.
package asset

import (
	"embed"

	"github.com/dixieflatline76/wallsource/util/log"
)

//go:embed text/*
var assets embed.FS

// DefaultSourcesFile is the bundled source-definition document used until one is persisted.
const DefaultSourcesFile = "default_sources.json"

// Manager manages the loading of bundled assets.
type Manager struct{}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{}
}

// GetText loads and returns embedded text asset by name.
func (am *Manager) GetText(name string) (string, error) {
	textBytes, err := am.GetRaw(name)
	if err != nil {
		return "", err
	}
	return string(textBytes), nil
}

// GetRaw loads the bytes of an embedded text asset by name.
func (am *Manager) GetRaw(name string) ([]byte, error) {
	data, err := assets.ReadFile("text/" + name)
	if err != nil {
		log.Println("Error loading text:", err)
		return nil, err
	}
	return data, nil
}

// DefaultSources returns the bundled source-definition document.
func (am *Manager) DefaultSources() ([]byte, error) {
	return am.GetRaw(DefaultSourcesFile)
}
