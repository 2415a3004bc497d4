package reservation

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/savebox/box-orders/internal/adapters/mongo"
	"github.com/savebox/box-orders/internal/adapters/postgres"
	redisadapter "github.com/savebox/box-orders/internal/adapters/redis"
	"github.com/savebox/box-orders/internal/domain"
	"github.com/savebox/box-orders/internal/observability"
)

// Service grants time-boxed exclusive holds on boxes. The Redis lock is a
// cheap first gate under contention; the conditional update in the box
// ledger is the single authoritative arbiter of who won.
type Service struct {
	repo   *postgres.Repository
	cache  *redisadapter.Cache
	audit  *mongoadapter.AuditLogger
	policy domain.ReservationPolicy
	logger observability.Logger
	now    func() time.Time
}

func NewService(repo *postgres.Repository, cache *redisadapter.Cache, audit *mongoadapter.AuditLogger, policy domain.ReservationPolicy, logger observability.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		audit:  audit,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// ReserveBox attempts to hold boxID for customerID. ttlMinutes of zero
// picks the policy default. Exactly one of N concurrent callers gets the
// expiry timestamp back; the rest get ErrAlreadyReserved or
// ErrBoxNotAvailable.
func (s *Service) ReserveBox(ctx context.Context, boxID, customerID int64, ttlMinutes int) (time.Time, error) {
	ttl, err := s.policy.ResolveTTL(ttlMinutes)
	if err != nil {
		return time.Time{}, err
	}

	if s.cache != nil {
		ok, err := s.cache.AcquireBoxLock(ctx, boxID, customerID, ttl)
		if err != nil {
			// Redis being down must not take reservations with it.
			s.logger.Warn("box lock fast path unavailable", err)
		} else if !ok {
			observability.ReserveConflicts.Inc()
			return time.Time{}, domain.ErrAlreadyReserved
		}
	}

	expiresAt, err := s.tryReserve(ctx, boxID, customerID, ttl)
	if err != nil {
		if s.cache != nil {
			// The DB said no, drop the fast-path lock we just took so the
			// box is not shadow-blocked for the TTL.
			if delErr := s.cache.ReleaseBoxLock(ctx, boxID); delErr != nil {
				s.logger.Warn("failed to release box lock", delErr)
			}
		}
		if errors.Is(err, domain.ErrAlreadyReserved) {
			observability.ReserveConflicts.Inc()
		}
		return time.Time{}, err
	}

	s.logger.WithFields(map[string]interface{}{
		"box_id":      boxID,
		"customer_id": customerID,
		"expires_at":  expiresAt,
	}).Info("box reserved")
	if s.audit != nil {
		s.audit.LogReservation(ctx, boxID, customerID, expiresAt)
	}
	return expiresAt, nil
}

// One transparent retry with jitter on infrastructure conflicts; every
// typed denial goes straight back to the caller.
func (s *Service) tryReserve(ctx context.Context, boxID, customerID int64, ttl time.Duration) (time.Time, error) {
	expiresAt, err := s.repo.TryReserve(ctx, boxID, customerID, ttl, s.now())
	if errors.Is(err, domain.ErrSerializationFailure) {
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-time.After(time.Duration(25+rand.Intn(50)) * time.Millisecond):
		}
		expiresAt, err = s.repo.TryReserve(ctx, boxID, customerID, ttl, s.now())
	}
	return expiresAt, err
}

// Release returns a box to active if it is still reserved. Used by the
// expiry sweep; safe to call on boxes that were sold or released meanwhile.
func (s *Service) Release(ctx context.Context, boxID int64) (bool, error) {
	released, err := s.repo.Release(ctx, boxID, s.now())
	if err != nil {
		return false, err
	}
	if released && s.cache != nil {
		if err := s.cache.ReleaseBoxLock(ctx, boxID); err != nil {
			s.logger.Warn("failed to release box lock", err)
		}
	}
	return released, nil
}
