package billing

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/service/ledger"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BillingService applies payment events and periodic grants to the ledger
type BillingService struct {
	db                db.Database
	ledger            *ledger.Ledger
	subscriptionGrant int
	monthlyGrant      int
	now               func() time.Time
}

// grantPeriodLayout keys monthly grants by calendar month in UTC
const grantPeriodLayout = "2006-01"

// NewBillingService creates a new BillingService
func NewBillingService(database db.Database, l *ledger.Ledger, cfg *config.LedgerConfig) *BillingService {
	return &BillingService{
		db:                database,
		ledger:            l,
		subscriptionGrant: cfg.SubscriptionGrant,
		monthlyGrant:      cfg.MonthlyGrant,
		now:               time.Now,
	}
}

// HandleCheckoutCompleted subscribes the customer with the given email and credits the subscription grant.
// reference identifies the checkout; a redelivered checkout returns db.ErrAlreadyApplied and credits nothing.
// It returns db.ErrUserNotFound when no account matches.
func (s *BillingService) HandleCheckoutCompleted(ctx context.Context, email, reference string) (*db.User, int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, 0, fmt.Errorf("checkout session has no customer email: %w", db.ErrUserNotFound)
	}
	if reference == "" {
		return nil, 0, ledger.ErrMissingReference
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, 0, err
	}

	balance, err := s.ledger.ActivateSubscription(ctx, user.ID, s.subscriptionGrant, "checkout:"+reference)
	if err != nil {
		return nil, 0, err
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"reference": reference,
		"grant":     s.subscriptionGrant,
		"balance":   balance,
	}).Info("Subscription activated")

	return user, balance, nil
}

// MonthlyGrant credits the monthly allowance to every subscriber not yet granted this month.
// Repeated runs within a month, from any instance or trigger, credit nobody twice.
// It returns the number of users credited by this call and the period key.
func (s *BillingService) MonthlyGrant(ctx context.Context) (int, string, error) {
	started := time.Now()
	period := s.now().UTC().Format(grantPeriodLayout)

	credited, err := s.ledger.GrantSubscribers(ctx, s.monthlyGrant, period)
	if err != nil {
		logger.Log.WithField("period", period).WithError(err).Error("Monthly grant failed")
		return 0, period, err
	}

	logger.Log.WithFields(logrus.Fields{
		"period":      period,
		"subscribers": credited,
		"grant":       s.monthlyGrant,
		"duration":    time.Since(started).String(),
	}).Info("Monthly grant distributed")

	return credited, period, nil
}

// StartSchedule runs MonthlyGrant on spec (standard cron syntax or descriptors such as @monthly).
// The returned scheduler must be stopped on shutdown.
func (s *BillingService) StartSchedule(ctx context.Context, spec string) (*cron.Cron, error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(spec, func() {
		if _, _, err := s.MonthlyGrant(ctx); err != nil {
			logger.Log.WithField("schedule", spec).WithError(err).Warn("Scheduled monthly grant failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid CRON_SCHEDULE %q: %w", spec, err)
	}

	scheduler.Start()
	logger.Log.WithField("schedule", spec).Info("Monthly grant schedule started")
	return scheduler, nil
}
