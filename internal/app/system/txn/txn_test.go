package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "generic error",
			err:  errors.New("some random error"),
			want: false,
		},
		{
			name: "standalone server",
			err:  mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"},
			want: true,
		},
		{
			name: "wrapped standalone server",
			err:  fmt.Errorf("follow: %w", mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}),
			want: true,
		},
		{
			name: "other illegal operation",
			err:  mongo.CommandError{Code: 20, Message: "cannot drop a collection while it is being written"},
			want: false,
		},
		{
			name: "operation not supported in transaction",
			err:  mongo.CommandError{Code: 263, Message: "Cannot run in a multi-document transaction"},
			want: true,
		},
		{
			name: "no such transaction",
			err:  mongo.CommandError{Code: 251, Message: "Transaction 3 has been aborted", Labels: []string{"TransientTransactionError"}},
			want: false,
		},
		{
			name: "write conflict",
			err:  mongo.CommandError{Code: 112, Message: "WriteConflict error: this operation conflicted with another operation"},
			want: false,
		},
		{
			name: "transaction and session words in a plain error",
			err:  errors.New("cannot start transaction in current session state"),
			want: false,
		},
		{
			name: "illegal operation words in a plain error",
			err:  errors.New("illegal operation during transaction"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotSupported(tt.err)
			if got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFallback_LatchesOnlyWhenUnsupported(t *testing.T) {
	m := New(nil, zap.NewNop())

	aborted := mongo.CommandError{Code: 251, Message: "Transaction 7 has been aborted", Labels: []string{"TransientTransactionError"}}
	if m.fallback(aborted) {
		t.Error("an aborted transaction must not fall back")
	}
	if m.fallback(nil) {
		t.Error("success must not fall back")
	}
	if m.unsupported.Load() {
		t.Fatal("runner latched after a transient error")
	}

	standalone := mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}
	if !m.fallback(standalone) {
		t.Error("expected fallback on a standalone server")
	}
	if !m.unsupported.Load() {
		t.Error("expected runner to latch")
	}
}

func TestRun_LatchedRunsDirectly(t *testing.T) {
	m := New(nil, zap.NewNop())
	m.unsupported.Store(true)

	called := false
	err := m.Run(context.Background(), func(ctx context.Context) error {
		called = true
		if InTransaction(ctx) {
			t.Error("expected no transaction once latched")
		}
		return nil
	})
	if err != nil || !called {
		t.Errorf("Run: called=%v err=%v", called, err)
	}
}

func TestDirect_RunsOutsideTransaction(t *testing.T) {
	called := false
	err := Direct{}.Run(context.Background(), func(ctx context.Context) error {
		called = true
		if InTransaction(ctx) {
			t.Error("expected no transaction for Direct runner")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}
}

func TestDirect_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := Direct{}.Run(context.Background(), func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("Run error = %v, want %v", err, want)
	}
}
