package memory

import (
	"context"
	"time"

	"deep-research-agent/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type sessionRecord struct {
	data       []byte
	modifiedAt time.Time
}

// SessionRepository keeps session records in process memory. Records never
// expire on their own; retention is the store's cleanup sweep.
type SessionRepository struct {
	cache *cache.Cache
	now   func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		cache: cache.New(cache.NoExpiration, 10*time.Minute),
		now:   time.Now,
	}
}

var _ contract.SessionBackend = (*SessionRepository)(nil)

func (r *SessionRepository) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	r.cache.Set(id, sessionRecord{data: stored, modifiedAt: r.now().UTC()}, cache.NoExpiration)
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x, found := r.cache.Get(id)
	if !found {
		return nil, contract.ErrRecordNotFound
	}
	record := x.(sessionRecord)
	out := make([]byte, len(record.data))
	copy(out, record.data)
	return out, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, found := r.cache.Get(id); !found {
		return false, nil
	}
	r.cache.Delete(id)
	return true, nil
}

func (r *SessionRepository) List(ctx context.Context) ([]contract.RecordInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := r.cache.Items()
	records := make([]contract.RecordInfo, 0, len(items))
	for id, item := range items {
		record := item.Object.(sessionRecord)
		records = append(records, contract.RecordInfo{ID: id, ModifiedAt: record.modifiedAt})
	}
	return records, nil
}

// Touch overrides a record's modification time. Used to age records in tests
// and when importing sessions from another backend.
func (r *SessionRepository) Touch(id string, modifiedAt time.Time) bool {
	x, found := r.cache.Get(id)
	if !found {
		return false
	}
	record := x.(sessionRecord)
	record.modifiedAt = modifiedAt.UTC()
	r.cache.Set(id, record, cache.NoExpiration)
	return true
}
