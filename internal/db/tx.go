package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// InTx runs fn as one unit of work: every mutation made through tx commits
// together when fn returns nil, and none of them persist otherwise.
// Panics roll back and are rethrown.
func InTx(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return conn.WithContext(ctx).Transaction(fn)
}

// InTxRetry is InTx retried up to attempts times while the failure is a
// transient storage conflict (serialization failure, deadlock, busy database).
func InTxRetry(ctx context.Context, conn *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = InTx(ctx, conn, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}
