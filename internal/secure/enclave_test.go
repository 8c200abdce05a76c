package secure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecureBuffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "creates enclave from bytes", data: []byte("my-secret-password")},
		{name: "handles empty data", data: []byte{}},
		{name: "handles binary data", data: []byte{0x00, 0xFF, 0x10, 0x20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			size := len(tt.data)
			buf, err := NewSecureBuffer(tt.data)
			require.NoError(t, err)
			require.NotNil(t, buf)
			assert.Equal(t, size, buf.Len())

			buf.Destroy()
			assert.Equal(t, 0, buf.Len())
		})
	}
}

func TestSecureBuffer_Use(t *testing.T) {
	t.Parallel()

	buf, err := FromString("LUFRPT14MW5xOEo1R09KVlBZ")
	require.NoError(t, err)
	defer buf.Destroy()

	var seen string
	err = buf.Use(func(plaintext []byte) error {
		seen = string(plaintext)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "LUFRPT14MW5xOEo1R09KVlBZ", seen)

	sentinel := errors.New("callback failed")
	err = buf.Use(func([]byte) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestSecureBuffer_OpenAfterDestroy(t *testing.T) {
	t.Parallel()

	buf, err := FromString("passphrase")
	require.NoError(t, err)

	buf.Destroy()
	buf.Destroy() // idempotent

	locked, err := buf.Open()
	require.NoError(t, err)
	defer locked.Destroy()
	assert.Empty(t, locked.Bytes())
	assert.True(t, buf.IsEmpty())
}

func TestSecureBuffer_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var buf *SecureBuffer
	assert.True(t, buf.IsEmpty())
	assert.NotPanics(t, buf.Destroy)
}
