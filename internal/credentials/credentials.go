// Package credentials stores per-application secrets such as generated
// database passwords, keyed by application name.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
)

// Store saves and loads credentials per application.
type Store interface {
	Save(app, key, value string) error
	// Load returns all credentials of app; an unknown app yields an empty map.
	Load(app string) (map[string]string, error)
	Apps() ([]string, error)
	Delete(app string) error
}

var (
	appPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ErrInvalidName is returned for app names or keys that cannot be stored.
var ErrInvalidName = errors.New("invalid credential name")

// CheckApp validates an application name. App names become file names.
func CheckApp(app string) error {
	if !appPattern.MatchString(app) {
		return fmt.Errorf("%w: app %q", ErrInvalidName, app)
	}
	return nil
}

// CheckKey validates a credential key. Keys are exported to install
// scripts as environment variables.
func CheckKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	return nil
}

// DefaultLength is the length of generated secrets.
const DefaultLength = 32

// Generate returns a random URL-safe secret of length characters.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}

	// base64 yields 4 characters per 3 bytes.
	buf := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

// Ensure returns the stored value of app/key, generating and saving a new
// secret when none exists. The second result reports whether a secret was
// generated.
func Ensure(s Store, app, key string, length int) (string, bool, error) {
	creds, err := s.Load(app)
	if err != nil {
		return "", false, err
	}
	if v, ok := creds[key]; ok && v != "" {
		return v, false, nil
	}

	v, err := Generate(length)
	if err != nil {
		return "", false, err
	}
	if err := s.Save(app, key, v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Mask hides all but the last four characters of a secret.
func Mask(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
