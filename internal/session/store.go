package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
)

// Store keeps query sessions in memory with a sliding TTL. Sessions are not
// persisted; a restart drops them.
type Store struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a session store. Zero values fall back to one hour TTL
// with a ten minute purge interval.
func NewStore(ttl, cleanup time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{cache: cache.New(ttl, cleanup), ttl: ttl, logger: logger}
	s.cache.OnEvicted(func(id string, _ interface{}) {
		metrics.SessionsActive.Set(float64(s.cache.ItemCount()))
		logger.Debug("Query session evicted", zap.String("session_id", id))
	})
	return s
}

// Put stores qc under a new session id and returns it.
func (s *Store) Put(qc *QueryContext) string {
	qc.id = uuid.New().String()
	s.cache.Set(qc.id, qc, cache.DefaultExpiration)
	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Set(float64(s.cache.ItemCount()))
	s.logger.Info("Query session created", zap.String("session_id", qc.id))
	return qc.id
}

// Get returns the session and refreshes its TTL.
func (s *Store) Get(id string) (*QueryContext, bool) {
	x, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	qc := x.(*QueryContext)
	s.cache.Set(id, qc, cache.DefaultExpiration)
	return qc, true
}

// Delete drops a session.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
	metrics.SessionsActive.Set(float64(s.cache.ItemCount()))
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	return s.cache.ItemCount()
}
