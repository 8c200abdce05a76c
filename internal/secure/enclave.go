package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer holds key material (API keys, private key passphrases, PEM
// private keys) encrypted in memory. It wraps memguard.Enclave, which
// encrypts the data at rest and mlocks the plaintext while it is open.
type SecureBuffer struct {
	enclave *memguard.Enclave
	size    int
	mu      sync.RWMutex
	// destroyed makes Destroy idempotent and blocks use after destroy
	destroyed bool
}

// NewSecureBuffer moves data into a protected enclave.
// memguard wipes the source slice; pass a copy if the caller still needs it.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	buf := &SecureBuffer{size: len(data)}
	if len(data) > 0 {
		buf.enclave = memguard.NewEnclave(data)
	}
	return buf, nil
}

// FromString copies s into a new SecureBuffer.
func FromString(s string) (*SecureBuffer, error) {
	return NewSecureBuffer([]byte(s))
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done.
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	secret := locked.Bytes()
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	if s == nil {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.enclave == nil {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return s.enclave.Open()
}

// Use opens the buffer, hands the plaintext to fn and wipes it afterwards.
// fn must not retain the slice.
func (s *SecureBuffer) Use(fn func(plaintext []byte) error) error {
	locked, err := s.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Len returns the size of the protected data in bytes.
func (s *SecureBuffer) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return 0
	}
	return s.size
}

// IsEmpty reports whether the buffer holds no data. A nil buffer is empty.
func (s *SecureBuffer) IsEmpty() bool {
	return s.Len() == 0
}

// Destroy marks the buffer as destroyed; later Opens return an empty buffer.
// The enclave ciphertext is left to the garbage collector. Call
// memguard.Purge() at process exit to wipe every enclave key.
// Destroy is idempotent.
func (s *SecureBuffer) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}
