// Package authtest builds an auth.Provider over an in-memory store for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/testutil/memstore"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Secret is the token secret used by NewProvider.
const Secret = "test-secret-test-secret-test-secret!"

// NewProvider returns a provider backed by mem. The notifier is closed when
// the test ends.
func NewProvider(t *testing.T, mem *memstore.Store) *auth.Provider {
	t.Helper()
	n := auth.NewNotifier()
	t.Cleanup(n.Close)
	p, err := auth.NewProvider(mem.Identities, mem.Sessions, n, auth.Config{
		Secret:     Secret,
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p
}
