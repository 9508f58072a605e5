package cppdbc

import (
	"context"
	"sync"
)

// Blob is the semantic container of a length-prefixed byte sequence with
// random-access read, in-place write, truncation, and release. It has two
// concrete shapes: MemoryBlob (all data resident) and the engine-specific
// lazy, database-backed blobs built on lazyBlobBackend.
type Blob interface {
	// Length returns the current blob length in bytes.
	Length() (int64, error)

	// GetBytes reads len bytes starting at pos (0-based).
	GetBytes(pos int64, length int) ([]byte, error)

	// SetBytes writes bytes at pos, growing the blob to pos+len(bytes) if
	// that exceeds the current length.
	SetBytes(pos int64, bytes []byte) error

	// Truncate shrinks the blob to length if it is currently longer.
	Truncate(length int64) error

	// Free releases the blob, unlinking any underlying database object.
	Free() error
}

// MemoryBlob is an in-memory Blob implementation.
type MemoryBlob struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBlob returns a MemoryBlob seeded with the given bytes (copied).
func NewMemoryBlob(data []byte) *MemoryBlob {
	b := make([]byte, len(data))
	copy(b, data)
	return &MemoryBlob{data: b}
}

func (b *MemoryBlob) Length() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data)), nil
}

func (b *MemoryBlob) GetBytes(pos int64, length int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < 0 || int(pos) > len(b.data) {
		return nil, NewError(CodeWrongType, "blob read position out of range")
	}
	end := int(pos) + length
	if end > len(b.data) {
		end = len(b.data)
	}
	out := make([]byte, end-int(pos))
	copy(out, b.data[pos:end])
	return out, nil
}

func (b *MemoryBlob) SetBytes(pos int64, bytes []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	needed := int(pos) + len(bytes)
	if needed > len(b.data) {
		grown := make([]byte, needed)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[pos:], bytes)
	return nil
}

func (b *MemoryBlob) Truncate(length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(length) < len(b.data) {
		b.data = b.data[:length]
	}
	return nil
}

func (b *MemoryBlob) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
	return nil
}

// lazyBlobBackend is the engine-specific hook a lazy blob materializes
// through. largeObjectSource in driver_postgres.go (PostgreSQL large
// objects) is the one implementation in this package.
type lazyBlobBackend interface {
	// Exists reports whether the identifier names a live object.
	Exists(ctx context.Context, id string) (bool, error)

	// Read reads the full object in chunks, calling append for each
	// chunk, under its own short transaction.
	Read(ctx context.Context, id string, chunkSize int, append func([]byte)) error

	// Write rewrites the full object (creating it if id is empty) in
	// chunks, returning the (possibly new) identifier.
	Write(ctx context.Context, id string, data []byte, chunkSize int) (string, error)

	// Unlink removes the underlying object.
	Unlink(ctx context.Context, id string) error

	// ConnectionValid reports whether the owning connection is still
	// usable; a lazy blob refuses to touch the backend once it is not.
	ConnectionValid() bool
}

const lazyBlobChunkSize = 32 * 1024

// LazyBlob is a database-backed Blob that materializes its content on first
// access and tracks a dirty flag for writeback on Save.
type LazyBlob struct {
	mu      sync.Mutex
	id      string
	backend lazyBlobBackend
	data    []byte
	loaded  bool
	dirty   bool
}

// NewLazyBlob constructs a lazy blob bound to an existing identifier.
func NewLazyBlob(id string, backend lazyBlobBackend) *LazyBlob {
	return &LazyBlob{id: id, backend: backend}
}

// NewLazyBlobData constructs a lazy blob with data already resident (e.g.
// freshly written), skipping the initial load.
func NewLazyBlobData(data []byte, backend lazyBlobBackend) *LazyBlob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &LazyBlob{backend: backend, data: buf, loaded: true}
}

// ensureLoaded materializes the blob's content on first access. It is safe
// to call repeatedly; after the first successful call it is a no-op.
func (b *LazyBlob) ensureLoaded(ctx context.Context) error {
	if b.loaded {
		return nil
	}
	if !b.backend.ConnectionValid() {
		return NewError(CodeConnectionClosed, "connection closed")
	}
	var buf []byte
	err := b.backend.Read(ctx, b.id, lazyBlobChunkSize, func(chunk []byte) {
		buf = append(buf, chunk...)
	})
	if err != nil {
		return WrapError(CodeExecuteFailed, "loading lazy blob", err)
	}
	b.data = buf
	b.loaded = true
	return nil
}

// Length triggers ensureLoaded on first call and is free thereafter.
func (b *LazyBlob) Length() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(context.Background()); err != nil {
		return 0, err
	}
	return int64(len(b.data)), nil
}

// GetBytes triggers ensureLoaded, then reads from the in-memory copy.
func (b *LazyBlob) GetBytes(pos int64, length int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(context.Background()); err != nil {
		return nil, err
	}
	if pos < 0 || int(pos) > len(b.data) {
		return nil, NewError(CodeWrongType, "blob read position out of range")
	}
	end := int(pos) + length
	if end > len(b.data) {
		end = len(b.data)
	}
	out := make([]byte, end-int(pos))
	copy(out, b.data[pos:end])
	return out, nil
}

// SetBytes triggers ensureLoaded, mutates the in-memory copy, and marks the
// blob dirty so Save knows to write it back.
func (b *LazyBlob) SetBytes(pos int64, bytes []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(context.Background()); err != nil {
		return err
	}
	needed := int(pos) + len(bytes)
	if needed > len(b.data) {
		grown := make([]byte, needed)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[pos:], bytes)
	b.dirty = true
	return nil
}

// Truncate shrinks the in-memory copy and marks the blob dirty.
func (b *LazyBlob) Truncate(length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(context.Background()); err != nil {
		return err
	}
	if int(length) < len(b.data) {
		b.data = b.data[:length]
		b.dirty = true
	}
	return nil
}

// Save rewrites the object under a transaction, creating it if it has no
// identifier yet, committing on success and leaving the dirty flag cleared.
func (b *LazyBlob) Save(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.backend.ConnectionValid() {
		return NewError(CodeConnectionClosed, "connection closed")
	}
	newID, err := b.backend.Write(ctx, b.id, b.data, lazyBlobChunkSize)
	if err != nil {
		return WrapError(CodeExecuteFailed, "saving lazy blob", err)
	}
	b.id = newID
	b.dirty = false
	return nil
}

// IsDirty reports whether the in-memory copy has unsaved mutations.
func (b *LazyBlob) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// IsLoaded reports whether the blob has materialized its content.
func (b *LazyBlob) IsLoaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Free unlinks the underlying object (if it has a valid id) and clears the
// in-memory state.
func (b *LazyBlob) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.id != "" && b.backend.ConnectionValid() {
		if err := b.backend.Unlink(context.Background(), b.id); err != nil {
			return WrapError(CodeExecuteFailed, "unlinking lazy blob", err)
		}
	}
	b.id = ""
	b.data = nil
	b.loaded = false
	b.dirty = false
	return nil
}
