package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// KeychainService is the generic-password service target database
// passwords are filed under.
const KeychainService = "geoetl"

// securityItemNotFound is the exit status of `security` for a missing item.
const securityItemNotFound = 44

// KeychainStore reads target passwords from the macOS login keychain
// through the `security` CLI. Each secretKey is an account under Service.
type KeychainStore struct {
	Service string // defaults to KeychainService

	// Security runs the security tool with args and returns its stdout.
	// Defaults to exec.Command("security", args...).Output.
	Security func(args ...string) ([]byte, error)
}

// NewKeychainStore returns a store using the default service.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{}
}

// Set adds or updates the password for key.
func (k *KeychainStore) Set(key string, value []byte) error {
	_, err := k.security("add-generic-password", "-U", "-a", key, "-s", k.service(), "-w", string(value))
	if err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}

// Get returns the password for key. A missing item, or a host without the
// security tool, reads as not found so a Chain falls through.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.security("find-generic-password", "-a", key, "-s", k.service(), "-w")
	if err != nil {
		if keychainMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimRight(string(out), "\r\n")), nil
}

// Delete removes the password for key. Deleting a missing item is not an error.
func (k *KeychainStore) Delete(key string) error {
	_, err := k.security("delete-generic-password", "-a", key, "-s", k.service())
	if err != nil && !keychainMissing(err) {
		return fmt.Errorf("keychain delete %s: %w", key, err)
	}
	return nil
}

func (k *KeychainStore) service() string {
	if k.Service != "" {
		return k.Service
	}
	return KeychainService
}

func (k *KeychainStore) security(args ...string) ([]byte, error) {
	if k.Security != nil {
		return k.Security(args...)
	}
	out, err := exec.Command("security", args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
	}
	return out, err
}

func keychainMissing(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == securityItemNotFound
}
