// Package txn runs multi-document writes inside a MongoDB transaction, falling
// back to plain sequential writes when the deployment cannot run transactions
// (standalone servers, some DocumentDB setups).
package txn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Runner executes fn as one unit of work.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Mongo is a Runner backed by driver sessions.
type Mongo struct {
	client *mongo.Client
	log    *zap.Logger

	// unsupported latches after the first "transactions not supported" answer
	// so later calls skip straight to the fallback.
	unsupported atomic.Bool
}

// New returns a Runner for client.
func New(client *mongo.Client, logger *zap.Logger) *Mongo {
	return &Mongo{client: client, log: logger}
}

// Run executes fn in a transaction. If the server refuses transactions, fn is
// executed again without one; callers that need compensation on partial
// failure can check InTransaction(ctx).
func (m *Mongo) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.unsupported.Load() {
		return fn(ctx)
	}

	sess, err := m.client.StartSession()
	if err != nil {
		if m.fallback(err) {
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if m.fallback(err) {
		return fn(ctx)
	}
	return err
}

// fallback reports whether err means transactions are unavailable, and if so
// latches the runner into sequential mode.
func (m *Mongo) fallback(err error) bool {
	if !IsNotSupported(err) {
		return false
	}
	if m.unsupported.CompareAndSwap(false, true) {
		m.log.Warn("transactions not supported; using sequential writes", zap.Error(err))
	}
	return true
}

// Direct runs fn without a transaction.
type Direct struct{}

// Run calls fn.
func (Direct) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// InTransaction reports whether ctx carries an active driver session.
func InTransaction(ctx context.Context) bool {
	return mongo.SessionFromContext(ctx) != nil
}

// IsNotSupported reports whether err means the server cannot run
// multi-document transactions: IllegalOperation (20) answered by a
// standalone server, or OperationNotSupportedInTransaction (263). Aborted
// or conflicting transactions are not.
func IsNotSupported(err error) bool {
	var ce mongo.CommandError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case 20:
		msg := strings.ToLower(ce.Message)
		return strings.Contains(msg, "replica set") || strings.Contains(msg, "transaction numbers")
	case 263:
		return true
	}
	return false
}
