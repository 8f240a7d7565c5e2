// Package secure holds secret plaintext in protected memory.
//
// A resolved secure input travels through the pipeline as an opaque *Value
// handle; the plaintext is only materialized inside the secure value codec at
// the point of use (comparison or apply). The backing store is a
// memguard.Enclave, which keeps the bytes encrypted at rest in memory and
// mlocked against swapping. Call memguard.Purge() at process exit for full
// cleanup.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Value is a protected secret. Its String() is always redacted so a Value
// can never leak through logging or error formatting.
type Value struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed allows idempotent Destroy() and prevents use after destroy
	destroyed bool
}

// NewValue copies secret bytes into a protected memory region.
// memguard wipes the source slice, so callers must not reuse it.
func NewValue(data []byte) *Value {
	return &Value{enclave: memguard.NewEnclave(data)}
}

// FromString copies a secret string into a protected memory region.
// The original string is unreachable for wiping; prefer NewValue with a byte
// slice when the caller controls the buffer (e.g. terminal reads).
func FromString(s string) *Value {
	return NewValue([]byte(s))
}

// Open decrypts and returns the plaintext in a locked buffer.
// The caller MUST call Destroy() on the returned buffer when done.
func (v *Value) Open() (*memguard.LockedBuffer, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return v.enclave.Open()
}

// WithString exposes the plaintext to fn and wipes the working copy before
// returning. The string passed to fn must not escape the callback.
func (v *Value) WithString(fn func(plaintext string) error) error {
	buf, err := v.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// String implements fmt.Stringer, always redacted.
func (v *Value) String() string {
	return "[REDACTED]"
}

// GoString keeps %#v formatting redacted too.
func (v *Value) GoString() string {
	return "[REDACTED]"
}

// Destroy marks this Value as destroyed and prevents further use.
// Idempotent; after Destroy, Open returns an empty buffer.
func (v *Value) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return
	}
	v.enclave = nil
	v.destroyed = true
}
