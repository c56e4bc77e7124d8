package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inaiurai/jobmeter/internal/gate"
	"github.com/inaiurai/jobmeter/internal/models"
)

var (
	// ErrInsufficientBalance is returned by Store.Debit when the balance does not cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrPolicyNotFound      = errors.New("feature policy not found")
)

// CodeInsufficientBalance is the error code reported when the gate allows a
// charge but the balance cannot cover it.
const CodeInsufficientBalance = "InsufficientBalance"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Store is the persistence contract for the account, policy and ledger tables.
type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetPolicy(ctx context.Context, featureKey string) (*models.FeaturePolicy, error)
	Debit(ctx context.Context, accountID uuid.UUID, featureKey string, amount decimal.Decimal) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
}

// ChargeResult is the outcome of ChargeFeature. Policy denials and
// insufficient balance are reported with OK=false, not as errors.
type ChargeResult struct {
	OK             bool
	Consumed       decimal.Decimal
	NewBalance     decimal.Decimal
	BypassedCharge bool
	ErrorCode      string
	Required       *decimal.Decimal
	Available      *decimal.Decimal
	EntryID        *uuid.UUID
}

type Service interface {
	ChargeFeature(ctx context.Context, accountID uuid.UUID, featureKey string) (*ChargeResult, error)
	Check(ctx context.Context, accountID uuid.UUID, featureKey string) (gate.Decision, error)
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
}

type service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, log: log}
}

var _ Service = (*service)(nil)

// Check runs the gate without charging.
func (s *service) Check(ctx context.Context, accountID uuid.UUID, featureKey string) (gate.Decision, error) {
	acc, pol, err := s.load(ctx, accountID, featureKey)
	if err != nil {
		return gate.Decision{}, err
	}
	if pol == nil {
		return gate.Decision{Reason: gate.ReasonFeatureDisabled, Cost: decimal.Zero}, nil
	}
	return gate.Evaluate(acc, pol), nil
}

func (s *service) ChargeFeature(ctx context.Context, accountID uuid.UUID, featureKey string) (*ChargeResult, error) {
	acc, pol, err := s.load(ctx, accountID, featureKey)
	if err != nil {
		return nil, err
	}
	if pol == nil {
		return denied(gate.ReasonFeatureDisabled, acc.Balance), nil
	}

	d := gate.Evaluate(acc, pol)
	if !d.Allowed {
		s.log.Debug("charge denied", "account_id", accountID, "feature_key", featureKey, "reason", d.Reason)
		return denied(d.Reason, acc.Balance), nil
	}
	if d.Bypassed {
		s.log.Info("charge bypassed", "account_id", accountID, "feature_key", featureKey, "policy_cost", pol.EffectiveCost())
		return &ChargeResult{OK: true, Consumed: decimal.Zero, NewBalance: acc.Balance, BypassedCharge: true}, nil
	}
	if !d.Cost.IsPositive() {
		return &ChargeResult{OK: true, Consumed: decimal.Zero, NewBalance: acc.Balance}, nil
	}

	entry, err := s.store.Debit(ctx, accountID, featureKey, d.Cost)
	if errors.Is(err, ErrInsufficientBalance) {
		available := acc.Balance
		if fresh, ferr := s.store.GetAccount(ctx, accountID); ferr == nil {
			available = fresh.Balance
		}
		required := d.Cost
		return &ChargeResult{
			ErrorCode:  CodeInsufficientBalance,
			Consumed:   decimal.Zero,
			NewBalance: available,
			Required:   &required,
			Available:  &available,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		OK:         true,
		Consumed:   entry.AmountDebited,
		NewBalance: entry.BalanceAfter,
		EntryID:    &entry.ID,
	}, nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.ListEntries(ctx, accountID, limit)
}

// load returns a nil policy (and no error) for unknown feature keys.
func (s *service) load(ctx context.Context, accountID uuid.UUID, featureKey string) (*models.Account, *models.FeaturePolicy, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	pol, err := s.store.GetPolicy(ctx, featureKey)
	if errors.Is(err, ErrPolicyNotFound) {
		return acc, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return acc, pol, nil
}

func denied(reason gate.DenyReason, balance decimal.Decimal) *ChargeResult {
	return &ChargeResult{ErrorCode: string(reason), Consumed: decimal.Zero, NewBalance: balance}
}
