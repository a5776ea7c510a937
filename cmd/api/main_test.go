package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunFailsFastOnInvalidConfig(t *testing.T) {
	t.Setenv("ADMIN_USER", "")
	t.Setenv("ADMIN_PASS", "")
	t.Setenv("JWT_SECRET", "")

	assert.Equal(t, 1, run())
}

func TestRunFailsWhenBackendIsUnreachable(t *testing.T) {
	t.Setenv("ADMIN_USER", "admin@example.com")
	t.Setenv("ADMIN_PASS", "admin-pass")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_URL", "not a url")

	assert.Equal(t, 1, run())
}
