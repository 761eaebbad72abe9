// Package coordinator runs the multi-step protocols that keep users,
// households, invitations and food items mutually consistent.
//
// The backing store has no multi-document transactions, so each protocol is
// a fixed sequence of single-document writes. Steps run strictly in order.
// A failed step is logged with its name and returned as one
// *apperrors.StepError; earlier steps are neither retried nor rolled back.
// Every step is an idempotent union/remove/delete or safe to leave in place,
// so callers recover by re-running the whole protocol.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/ledger"
	"github.com/mmynk/larder/internal/metrics"
	"github.com/mmynk/larder/internal/repository"
)

// SelectionListener is told when a user's selected household changes.
// householdID is empty when the user has no household left.
type SelectionListener func(ctx context.Context, userID, householdID string)

// Coordinator orchestrates the cross-aggregate protocols.
type Coordinator struct {
	users       *repository.Users
	households  *repository.Households
	invitations *repository.Invitations
	foodItems   *repository.FoodItems
	ledger      *ledger.Ledger
	identity    identity.Provider
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	listeners map[int]SelectionListener
	nextID    int
}

// Deps bundles the collaborators of a Coordinator.
type Deps struct {
	Users       *repository.Users
	Households  *repository.Households
	Invitations *repository.Invitations
	FoodItems   *repository.FoodItems
	Ledger      *ledger.Ledger
	Identity    identity.Provider
	Logger      *slog.Logger
	Now         func() time.Time
}

// New creates a Coordinator.
func New(d Deps) *Coordinator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Coordinator{
		users:       d.Users,
		households:  d.Households,
		invitations: d.Invitations,
		foodItems:   d.FoodItems,
		ledger:      d.Ledger,
		identity:    d.Identity,
		logger:      d.Logger,
		now:         d.Now,
		listeners:   make(map[int]SelectionListener),
	}
}

// OnSelectionChange registers l and returns a func that removes it.
func (c *Coordinator) OnSelectionChange(l SelectionListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Coordinator) notifySelection(ctx context.Context, userID, householdID string) {
	c.mu.Lock()
	ls := make([]SelectionListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(ctx, userID, householdID)
	}
}

// FollowSelection re-points the food item cache at every newly selected
// household, clearing it when the selection becomes NoHousehold. It returns
// a func that stops following.
func (c *Coordinator) FollowSelection() func() {
	return c.OnSelectionChange(func(ctx context.Context, userID, householdID string) {
		// The cache subscription outlives the request that changed the selection.
		if err := c.foodItems.Watch(context.WithoutCancel(ctx), householdID); err != nil {
			c.logger.Warn("Re-pointing food item cache failed",
				"user_id", userID,
				"household_id", householdID,
				"error", err,
			)
		}
	})
}

// actingUser resolves the caller through the identity provider.
func (c *Coordinator) actingUser(ctx context.Context) (string, error) {
	uid, err := c.identity.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", apperrors.ErrNotAuthenticated
	}
	return uid, nil
}

// run tracks one protocol invocation.
type run struct {
	c        *Coordinator
	protocol string
	start    time.Time
	logger   *slog.Logger
}

func (c *Coordinator) begin(protocol string, attrs ...any) *run {
	logger := c.logger.With(append([]any{"protocol", protocol}, attrs...)...)
	logger.Info("Protocol started")
	return &run{c: c, protocol: protocol, start: time.Now(), logger: logger}
}

// step runs fn as the named step. Failures are logged and wrapped.
func (r *run) step(name string, fn func() error) error {
	err := fn()
	if err != nil {
		metrics.ProtocolSteps.WithLabelValues(r.protocol, name, "error").Inc()
		r.logger.Error("Protocol step failed", "step", name, "error", err)
		return &apperrors.StepError{Protocol: r.protocol, Step: name, Err: err}
	}
	metrics.ProtocolSteps.WithLabelValues(r.protocol, name, "ok").Inc()
	r.logger.Debug("Protocol step done", "step", name)
	return nil
}

func (r *run) done(err error) error {
	metrics.ProtocolDuration.WithLabelValues(r.protocol).Observe(time.Since(r.start).Seconds())
	if err == nil {
		r.logger.Info("Protocol completed", "duration_ms", time.Since(r.start).Milliseconds())
	}
	return err
}
