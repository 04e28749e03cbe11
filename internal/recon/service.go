package recon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brioche-erp/brioche/internal/posting"
	"github.com/brioche-erp/brioche/internal/shared"
)

// GiftOrderSource reports which orders were marked as gifts. The engine does
// not own order records, so gift detection is injected by the caller.
type GiftOrderSource interface {
	ListGiftOrderIDs(ctx context.Context) ([]int64, error)
}

// Service runs verification checks and applies bounded repairs. Every repair
// is either a correcting journal entry or a removal of rows that violate an
// idempotency key; history is otherwise append-only.
type Service struct {
	repo   RepositoryPort
	roles  posting.RoleResolver
	gifts  GiftOrderSource
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs the reconciliation service. gifts may be nil; the
// gift check then reports clean with a note.
func NewService(repo RepositoryPort, roles posting.RoleResolver, gifts GiftOrderSource, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, gifts: gifts, audit: audit, logger: logger}
}

// RunVerification executes every check inside one transaction so all checks
// observe the same snapshot, and returns their results in stable order.
func (s *Service) RunVerification(ctx context.Context) ([]CheckResult, error) {
	var results []CheckResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, check := range AllChecks {
			res, err := s.runCheck(ctx, tx, check)
			if err != nil {
				return fmt.Errorf("recon: check %s: %w", check, err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if !res.OK {
			s.logger.Warn("verification check failed",
				slog.String("check", string(res.Check)),
				slog.Int("issues", len(res.Issues)))
		}
	}
	return results, nil
}

// RunCheck executes a single named check.
func (s *Service) RunCheck(ctx context.Context, check CheckName) (CheckResult, error) {
	if !knownCheck(check) {
		return CheckResult{}, fmt.Errorf("%w: %q", ErrUnknownCheck, check)
	}
	var result CheckResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.runCheck(ctx, tx, check)
		return err
	})
	return result, err
}

func (s *Service) runCheck(ctx context.Context, tx TxRepository, check CheckName) (CheckResult, error) {
	switch check {
	case CheckQuantityMatchesMovements:
		return s.checkQuantityMatchesMovements(ctx, tx)
	case CheckWIPMatchesOpenInPrep:
		return s.checkWIPMatchesOpenInPrep(ctx, tx)
	case CheckInventoryMatchesValuation:
		return s.checkInventoryMatchesValuation(ctx, tx)
	case CheckOrderWIPConsistency:
		return s.checkOrderWIPConsistency(ctx, tx)
	case CheckEntriesBalanced:
		return s.checkEntriesBalanced(ctx, tx)
	case CheckNoDuplicateEntries:
		return s.checkNoDuplicateEntries(ctx, tx)
	case CheckNoDuplicateMovements:
		return s.checkNoDuplicateMovements(ctx, tx)
	case CheckWithdrawalAccounts:
		return s.checkWithdrawalAccounts(ctx, tx)
	case CheckGiftOrdersUseGiftExpense:
		return s.checkGiftOrdersUseGiftExpense(ctx, tx)
	case CheckNoZeroCostUsage:
		return s.checkNoZeroCostUsage(ctx, tx)
	}
	return CheckResult{}, fmt.Errorf("%w: %q", ErrUnknownCheck, check)
}

func knownCheck(check CheckName) bool {
	for _, c := range AllChecks {
		if c == check {
			return true
		}
	}
	return false
}

func clean(check CheckName, details string) CheckResult {
	return CheckResult{Check: check, OK: true, Details: details}
}

func dirty(check CheckName, details string, issues []Issue) CheckResult {
	return CheckResult{Check: check, OK: false, Details: details, Issues: issues}
}
