package secret_test

import (
	"testing"

	"geoetl/internal/secret"
)

func TestEnvVar(t *testing.T) {
	cases := map[string]string{
		"pg":         "GEOETL_SECRET_PG",
		"pg-main":    "GEOETL_SECRET_PG_MAIN",
		"mongo.prod": "GEOETL_SECRET_MONGO_PROD",
	}
	for key, want := range cases {
		if got := secret.EnvVar(key); got != want {
			t.Errorf("EnvVar(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestEnvStore_Get(t *testing.T) {
	t.Setenv("GEOETL_SECRET_PG_MAIN", "hunter2")
	var s secret.EnvStore

	got, err := s.Get("pg-main")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hunter2" {
		t.Fatalf("expected hunter2, got %q", got)
	}

	missing, err := s.Get("nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing key, got %q, %v", missing, err)
	}
}

type mapStore map[string]string

func (m mapStore) Set(k string, v []byte) error { m[k] = string(v); return nil }
func (m mapStore) Get(k string) ([]byte, error) {
	if v, ok := m[k]; ok {
		return []byte(v), nil
	}
	return nil, nil
}
func (m mapStore) Delete(k string) error { delete(m, k); return nil }

func TestChain_FirstHitWins(t *testing.T) {
	first := mapStore{"a": "1"}
	second := mapStore{"a": "2", "b": "3"}
	c := secret.Chain{first, second}

	for key, want := range map[string]string{"a": "1", "b": "3"} {
		got, err := c.Get(key)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}

	if err := c.Set("c", []byte("4")); err != nil {
		t.Fatal(err)
	}
	if first["c"] != "4" {
		t.Error("Set should write to the first store")
	}
}
