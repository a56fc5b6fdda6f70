package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	pepperMu   sync.Mutex
	pepper     string
	pepperFile = "pepper"
)

// SetPepperPath points the package at the pepper file before any hashing
// happens. Call once during startup.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

// GetPepper lazily loads the pepper, generating and persisting a fresh one
// on first run. A missing pepper is unrecoverable: every stored hash depends
// on it.
func GetPepper() string {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper
	}

	p, err := loadOrGeneratePepper(filepath.Clean(pepperFile))
	if err != nil {
		panic(fmt.Sprintf("cryptox: pepper unavailable: %v", err))
	}
	pepper = p
	return pepper
}

func loadOrGeneratePepper(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	raw, err := randomBytes(argonKeyLength)
	if err != nil {
		return "", err
	}
	fresh := base64.RawURLEncoding.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(fresh), 0600); err != nil {
		return "", err
	}
	return fresh, nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptox: rng failure: %w", err)
	}
	return buf, nil
}
