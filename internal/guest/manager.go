// Package guest keeps the bookkeeping for guests the controller has let onto the network.
package guest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frontiertower/guest-portal/internal/controller"
	"github.com/frontiertower/guest-portal/internal/db"
)

// DefaultSweepInterval is how often expired registrations are marked.
const DefaultSweepInterval = time.Minute

// ErrInvalidStatus is returned when a status filter is not active, expired or empty.
var ErrInvalidStatus = errors.New("invalid guest status")

// Repository persists guest registrations. *db.DB implements it.
type Repository interface {
	CreateGuest(ctx context.Context, g *db.Guest) error
	ListGuests(ctx context.Context, status string) ([]*db.Guest, error)
	ExpireGuests(ctx context.Context, now time.Time) (int64, error)
	GetStats(ctx context.Context) (total int, active int, err error)
}

// Stats are the guest counters shown to administrators.
type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Manager records authorizations and expires them in the background.
type Manager struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	// Background cleanup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager and starts its sweep loop. A non-positive interval
// uses DefaultSweepInterval.
func NewManager(repo Repository, sweepInterval time.Duration, logger *zap.Logger) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go m.cleanupLoop(sweepInterval)

	return m
}

// Record stores a successful authorization.
func (m *Manager) Record(ctx context.Context, req controller.Request, res *controller.Result) (*db.Guest, error) {
	g := &db.Guest{
		ID:              uuid.New().String(),
		Email:           req.Email,
		MACAddress:      controller.LowerMAC(req.MAC),
		AccessPointMAC:  req.AccessPointMAC,
		IPAddress:       req.IPAddress,
		Browser:         req.Browser,
		OperatingSystem: req.OperatingSystem,
		Mode:            res.Mode,
		AuthorizedAt:    res.LastLogin,
		ExpiresAt:       res.ExpireOn,
		Status:          db.GuestActive,
	}

	if err := m.repo.CreateGuest(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to record guest: %w", err)
	}

	m.logger.Info("guest recorded",
		zap.String("guest_id", g.ID),
		zap.String("mac", g.MACAddress),
		zap.String("mode", g.Mode),
	)

	return g, nil
}

// List returns recorded guests, newest first. An empty status lists all of them.
func (m *Manager) List(ctx context.Context, status string) ([]*db.Guest, error) {
	switch status {
	case "", db.GuestActive, db.GuestExpired:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return m.repo.ListGuests(ctx, status)
}

// Stats returns the guest counters.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	total, active, err := m.repo.GetStats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read guest stats: %w", err)
	}
	return Stats{Total: total, Active: active}, nil
}

// SweepExpired marks every registration whose access window has passed.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.ExpireGuests(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("marked guests as expired", zap.Int64("count", n))
	}
	return n, nil
}

// Stop stops the sweep loop and waits for it to exit.
func (m *Manager) Stop() {
	m.cancel()
	<-m.done
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepExpired(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Warn("guest sweep failed", zap.Error(err))
			}
		}
	}
}
