package testutil

import (
	"testing"

	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"go.uber.org/zap/zaptest"
)

// NewLogger returns a service logger that writes through t.Log
func NewLogger(t testing.TB) *logger.Logger {
	return logger.FromZap(zaptest.NewLogger(t))
}
