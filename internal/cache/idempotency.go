package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultIdempotencyTTL bounds how long a stored response is replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// ErrInProgress is returned by Begin when another request holds the key.
var ErrInProgress = errors.New("request with this key is in progress")

// Response is a recorded HTTP response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// IdempotencyStore records responses of mutating requests by client key.
//
// Begin claims key and returns (nil, nil) for a first attempt. A completed key
// returns the stored response; a claimed but unfinished key returns
// ErrInProgress. Release forgets a claim so the request may be retried.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*Response, error)
	Complete(ctx context.Context, key string, r Response) error
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	done bool
	resp Response
}

// MemoryIdempotencyStore keeps responses in an expiring LRU. It is local to
// one process.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, memoryEntry]
}

var _ IdempotencyStore = (*MemoryIdempotencyStore)(nil)

// NewMemoryIdempotencyStore returns a store holding up to size keys for ttl.
func NewMemoryIdempotencyStore(size int, ttl time.Duration) *MemoryIdempotencyStore {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryIdempotencyStore{
		entries: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
	}
}

// Begin claims key.
func (s *MemoryIdempotencyStore) Begin(_ context.Context, key string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries.Get(key); ok {
		if !e.done {
			return nil, ErrInProgress
		}
		r := e.resp
		return &r, nil
	}
	s.entries.Add(key, memoryEntry{})
	return nil, nil
}

// Complete stores the response for key.
func (s *MemoryIdempotencyStore) Complete(_ context.Context, key string, r Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Add(key, memoryEntry{done: true, resp: r})
	return nil
}

// Release forgets key.
func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Remove(key)
	return nil
}

func encodeResponse(r Response) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("status")
	e.Int(r.Status)
	e.FieldStart("content_type")
	e.Str(r.ContentType)
	e.FieldStart("body")
	e.Base64(r.Body)
	e.ObjEnd()
	return append([]byte(nil), e.Bytes()...)
}

func decodeResponse(data []byte) (Response, error) {
	var r Response
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			r.Status, err = d.Int()
		case "content_type":
			r.ContentType, err = d.Str()
		case "body":
			r.Body, err = d.Base64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return Response{}, errors.Wrap(err, "decode stored response")
	}
	return r, nil
}
