package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves just enough of the Vault HTTP API for KV v2 reads and
// approle/userpass logins.
type fakeVault struct {
	mu       sync.Mutex
	logins   map[string]map[string]any
	tokens   []string
	password any
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tokens = append(f.tokens, r.Header.Get("X-Vault-Token"))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPut || r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.logins == nil {
			f.logins = map[string]map[string]any{}
		}
		f.logins[r.URL.Path] = body
		_ = json.NewEncoder(w).Encode(map[string]any{
			"auth": map[string]any{"client_token": "s.issued", "accessor": "acc-1", "lease_duration": 60},
		})

	case r.URL.Path == "/v1/secret/data/credsync/source":
		data := map[string]any{}
		if f.password != nil {
			data["password"] = f.password
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data": data,
				"metadata": map[string]any{
					"created_time":    "2026-01-02T03:04:05.000000Z",
					"custom_metadata": nil,
					"deletion_time":   "",
					"destroyed":       false,
					"version":         3,
				},
			},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
	}
}

func newFake(t *testing.T, password any) (*fakeVault, Options) {
	t.Helper()
	t.Setenv("VAULT_TOKEN", "")
	t.Setenv("VAULT_ADDR", "")

	fake := &fakeVault{password: password}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, Options{
		Address: srv.URL,
		Mount:   "secret",
		Path:    "credsync/source",
		Key:     "password",
	}
}

func TestLookupPasswordWithToken(t *testing.T) {
	fake, opts := newFake(t, "s3cret")
	opts.AuthMethod = AuthToken
	opts.Token = "s.root"

	got, err := LookupPassword(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, []string{"s.root"}, fake.tokens)
}

func TestLookupPasswordTokenMissing(t *testing.T) {
	_, opts := newFake(t, "s3cret")
	_, err := LookupPassword(context.Background(), opts)
	assert.ErrorContains(t, err, "no vault token")
}

func TestLookupPasswordWithAppRole(t *testing.T) {
	fake, opts := newFake(t, "s3cret")

	secretFile := filepath.Join(t.TempDir(), "secret_id")
	require.NoError(t, os.WriteFile(secretFile, []byte("sid-123"), 0o600))

	opts.AuthMethod = AuthAppRole
	opts.RoleID = "role-abc"
	opts.SecretIDFile = secretFile

	got, err := LookupPassword(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	body := fake.logins["/v1/auth/approle/login"]
	require.NotNil(t, body)
	assert.Equal(t, "role-abc", body["role_id"])
	assert.Equal(t, "sid-123", body["secret_id"])
	assert.Equal(t, "s.issued", fake.tokens[len(fake.tokens)-1])
}

func TestLookupPasswordWithUserpass(t *testing.T) {
	fake, opts := newFake(t, "s3cret")

	pwFile := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("hunter2"), 0o600))

	opts.AuthMethod = AuthUserpass
	opts.AuthMount = "ops-userpass"
	opts.Username = "credsync"
	opts.PasswordFile = pwFile

	_, err := LookupPassword(context.Background(), opts)
	require.NoError(t, err)

	body := fake.logins["/v1/auth/ops-userpass/login/credsync"]
	require.NotNil(t, body)
	assert.Equal(t, "hunter2", body["password"])
}

func TestReadKeyErrors(t *testing.T) {
	_, opts := newFake(t, nil)
	opts.Token = "s.root"
	_, err := LookupPassword(context.Background(), opts)
	assert.ErrorContains(t, err, `key "password" not found`)

	_, opts = newFake(t, 42)
	opts.Token = "s.root"
	_, err = LookupPassword(context.Background(), opts)
	assert.ErrorContains(t, err, "not a non-empty string")

	_, opts = newFake(t, "x")
	opts.Token = "s.root"
	opts.Path = "missing"
	_, err = LookupPassword(context.Background(), opts)
	assert.Error(t, err)
}

func TestLoginUnsupportedMethod(t *testing.T) {
	_, opts := newFake(t, "x")
	opts.AuthMethod = "kerberos"
	_, err := LookupPassword(context.Background(), opts)
	assert.ErrorContains(t, err, "unsupported vault auth method")
}
