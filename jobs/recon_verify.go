package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/brioche-erp/brioche/internal/recon"
)

// ReconVerifier runs the scheduled verification suite.
type ReconVerifier struct {
	service *recon.Service
	logger  *slog.Logger
}

// NewReconVerifier constructs the job handler.
func NewReconVerifier(service *recon.Service, logger *slog.Logger) *ReconVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconVerifier{service: service, logger: logger}
}

// Handle processes TaskReconVerify tasks.
func (v *ReconVerifier) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReconVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	results, err := v.service.RunVerification(ctx)
	if err != nil {
		return err
	}
	failed := map[recon.CheckName]bool{}
	for _, res := range results {
		if !res.OK {
			failed[res.Check] = true
		}
	}
	if len(failed) == 0 {
		v.logger.Info("nightly verification clean", slog.Int("checks", len(results)))
		return nil
	}
	v.logger.Warn("nightly verification found issues", slog.Int("failed_checks", len(failed)))
	if !payload.RepairDuplicates {
		return nil
	}
	// Only the idempotency-key repairs run unattended; valuation and
	// withdrawal corrections need an operator's eyes first.
	for _, check := range []recon.CheckName{recon.CheckNoDuplicateEntries, recon.CheckNoDuplicateMovements} {
		if !failed[check] {
			continue
		}
		actions, err := v.service.RunRepair(ctx, check)
		if err != nil {
			return err
		}
		v.logger.Info("automatic repair applied",
			slog.String("check", string(check)),
			slog.Int("actions", len(actions)))
	}
	return nil
}
