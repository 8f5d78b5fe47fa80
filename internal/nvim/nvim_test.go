package nvim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress(t *testing.T) {
	t.Setenv("NVIM", "")
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	assert.Empty(t, Address())

	t.Setenv("NVIM_LISTEN_ADDRESS", "/tmp/old.sock")
	assert.Equal(t, "/tmp/old.sock", Address())

	t.Setenv("NVIM", "/tmp/new.sock")
	assert.Equal(t, "/tmp/new.sock", Address())
}

func TestNew_NoInstance(t *testing.T) {
	t.Setenv("NVIM", "")
	t.Setenv("NVIM_LISTEN_ADDRESS", "")

	_, err := New()

	assert.ErrorIs(t, err, ErrNoInstance)
}

func TestLaunch_MissingBinary(t *testing.T) {
	t.Setenv("PATH", "")

	err := Launch("a", "b")

	assert.Error(t, err)
}
