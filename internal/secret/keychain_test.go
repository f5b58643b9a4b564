package secret_test

import (
	"errors"
	"os/exec"
	"reflect"
	"runtime"
	"testing"

	"geoetl/internal/secret"
)

// securityLog records the security invocations made by a KeychainStore.
type securityLog struct {
	calls [][]string
	out   []byte
	err   error
}

func (l *securityLog) run(args ...string) ([]byte, error) {
	l.calls = append(l.calls, args)
	return l.out, l.err
}

func TestKeychainStore_GetPassesServiceAndAccount(t *testing.T) {
	log := &securityLog{out: []byte("s3cret\n")}
	k := &secret.KeychainStore{Service: "geoetl-test", Security: log.run}

	got, err := k.Get("pg-main")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "s3cret" {
		t.Fatalf("expected s3cret, got %q", got)
	}
	want := []string{"find-generic-password", "-a", "pg-main", "-s", "geoetl-test", "-w"}
	if !reflect.DeepEqual(log.calls[0], want) {
		t.Fatalf("unexpected args %q", log.calls[0])
	}
}

func TestKeychainStore_SetUsesDefaultService(t *testing.T) {
	log := &securityLog{}
	k := &secret.KeychainStore{Security: log.run}

	if err := k.Set("pg-main", []byte("pw")); err != nil {
		t.Fatal(err)
	}
	want := []string{"add-generic-password", "-U", "-a", "pg-main", "-s", secret.KeychainService, "-w", "pw"}
	if len(log.calls) != 1 || !reflect.DeepEqual(log.calls[0], want) {
		t.Fatalf("unexpected calls %q", log.calls)
	}
}

func TestKeychainStore_MissingToolReadsAsNotFound(t *testing.T) {
	k := &secret.KeychainStore{Security: (&securityLog{err: exec.ErrNotFound}).run}

	got, err := k.Get("pg-main")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil, got %q, %v", got, err)
	}
	if err := k.Delete("pg-main"); err != nil {
		t.Fatalf("delete of a missing item should succeed, got %v", err)
	}

	// an env hit still wins in the chain the app builds on macOS
	t.Setenv("GEOETL_SECRET_PG_MAIN", "from-env")
	v, err := secret.Chain{secret.EnvStore{}, k}.Get("pg-main")
	if err != nil || string(v) != "from-env" {
		t.Fatalf("expected env value, got %q, %v", v, err)
	}
}

func TestKeychainStore_OtherFailuresSurface(t *testing.T) {
	k := &secret.KeychainStore{Security: (&securityLog{err: errors.New("user interaction is not allowed")}).run}
	if _, err := k.Get("pg-main"); err == nil {
		t.Fatal("expected a locked keychain to surface as an error")
	}
}

func TestKeychainStore_ExitStatus44IsNotFound(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	// produce a real *exec.ExitError with the security tool's not-found status
	_, exitErr := exec.Command("sh", "-c", "exit 44").Output()
	k := &secret.KeychainStore{Security: (&securityLog{err: exitErr}).run}

	got, err := k.Get("pg-main")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil, got %q, %v", got, err)
	}
}
