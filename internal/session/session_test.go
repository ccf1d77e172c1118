package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iammorganparry/issuehub/internal/config"
)

type testUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// storeFactories returns every backend that can run in this environment.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "session.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			return s
		},
	}
	if dsn := os.Getenv("ISSUEHUB_TEST_REDIS_URL"); dsn != "" {
		factories["redis"] = func(t *testing.T) Store {
			s, err := OpenRedis(context.Background(), dsn)
			if err != nil {
				t.Fatalf("OpenRedis: %v", err)
			}
			return s
		}
	}
	return factories
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			t.Cleanup(func() { store.Close() })
			store.Delete(ctx, TokenKey, UserKey)

			if _, err := store.Get(ctx, TokenKey); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
			}

			if err := store.Set(ctx, TokenKey, "abc"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := store.Set(ctx, TokenKey, "def"); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, err := store.Get(ctx, TokenKey)
			if err != nil || got != "def" {
				t.Fatalf("Get = %q, %v; want def", got, err)
			}

			if err := store.Set(ctx, UserKey, `{"id":1}`); err != nil {
				t.Fatalf("Set user: %v", err)
			}
			if err := store.Delete(ctx, TokenKey, UserKey, "never-set"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			for _, k := range []string{TokenKey, UserKey} {
				if _, err := store.Get(ctx, k); !errors.Is(err, ErrNotFound) {
					t.Errorf("%s still present after Delete: %v", k, err)
				}
			}
		})
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			t.Cleanup(func() { store.Close() })

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					if err := store.Set(ctx, TokenKey, "tok"); err != nil {
						t.Errorf("Set: %v", err)
					}
				}()
				go func() {
					defer wg.Done()
					if _, err := store.Get(ctx, TokenKey); err != nil && !errors.Is(err, ErrNotFound) {
						t.Errorf("Get: %v", err)
					}
				}()
			}
			wg.Wait()
		})
	}
}

func TestFileStorePersistsWithPrivateMode(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	first, _ := NewFileStore(path)
	if err := first.Set(ctx, TokenKey, "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}

	// A second store on the same path sees the value, as after a restart.
	second, _ := NewFileStore(path)
	got, err := second.Get(ctx, TokenKey)
	if err != nil || got != "abc" {
		t.Errorf("reopened Get = %q, %v", got, err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	store, _ := NewFileStore(path)
	if _, err := store.Get(context.Background(), TokenKey); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := store.Set(ctx, TokenKey, "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	store.Close()

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, TokenKey)
	if err != nil || got != "abc" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	sess := New(NewMemoryStore())

	t.Run("absent token reads as empty", func(t *testing.T) {
		token, err := sess.Token(ctx)
		if err != nil || token != "" {
			t.Errorf("Token = %q, %v", token, err)
		}
		var u testUser
		ok, err := sess.User(ctx, &u)
		if err != nil || ok {
			t.Errorf("User = %v, %v; want no cached user", ok, err)
		}
	})

	t.Run("set token and user", func(t *testing.T) {
		if err := sess.SetToken(ctx, "abc"); err != nil {
			t.Fatal(err)
		}
		if err := sess.SetUser(ctx, testUser{ID: 7, Email: "alice@example.com"}); err != nil {
			t.Fatal(err)
		}
		token, _ := sess.Token(ctx)
		if token != "abc" {
			t.Errorf("Token = %q", token)
		}
		var u testUser
		ok, err := sess.User(ctx, &u)
		if err != nil || !ok || u.ID != 7 || u.Email != "alice@example.com" {
			t.Errorf("User = %+v, %v, %v", u, ok, err)
		}
	})

	t.Run("clear removes both", func(t *testing.T) {
		if err := sess.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		token, _ := sess.Token(ctx)
		var u testUser
		ok, _ := sess.User(ctx, &u)
		if token != "" || ok {
			t.Errorf("after Clear: token=%q user=%v", token, ok)
		}
	})

	t.Run("empty SetToken clears token", func(t *testing.T) {
		sess.SetToken(ctx, "abc")
		if err := sess.SetToken(ctx, ""); err != nil {
			t.Fatal(err)
		}
		if token, _ := sess.Token(ctx); token != "" {
			t.Errorf("Token = %q", token)
		}
	})
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		wantErr bool
	}{
		{"memory", config.SessionConfig{Backend: config.BackendMemory}, false},
		{"file", config.SessionConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "s.json")}, false},
		{"sqlite", config.SessionConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "s.db")}, false},
		{"file without path", config.SessionConfig{Backend: config.BackendFile}, true},
		{"unknown", config.SessionConfig{Backend: "etcd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			store.Close()
		})
	}
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("not-the-server-key"))
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseClaims(signed)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
	if claims.Expired(time.Now()) {
		t.Error("fresh token reported expired")
	}
	if !claims.Expired(exp.Add(time.Minute)) {
		t.Error("token not expired after exp")
	}

	if _, err := ParseClaims("opaque-token"); err == nil {
		t.Error("expected error for opaque token")
	}
}
