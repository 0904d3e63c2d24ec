// Package jobs contains implementations of scheduled jobs for the SkillForge
// LMS worker.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// RENDER PENDING ARTIFACTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RenderPendingArtifactsJob finds issued certificates whose PDF render failed
// at issuance time and retries them. Together with the inline render this
// gives every certificate an artifact eventually without ever blocking
// issuance on the renderer.
type RenderPendingArtifactsJob struct {
	certRepo certificate.Repository
	issuer   *service.CertificateIssuer
	logger   *slog.Logger
	config   RenderPendingArtifactsConfig
}

// RenderPendingArtifactsConfig contains configuration for the backfill job.
type RenderPendingArtifactsConfig struct {
	// BatchSize caps how many certificates one run picks up.
	BatchSize int

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultRenderPendingArtifactsConfig returns sensible defaults.
func DefaultRenderPendingArtifactsConfig() RenderPendingArtifactsConfig {
	return RenderPendingArtifactsConfig{
		BatchSize: 50,
		Timeout:   2 * time.Minute,
	}
}

// NewRenderPendingArtifactsJob creates the job.
func NewRenderPendingArtifactsJob(
	certRepo certificate.Repository,
	issuer *service.CertificateIssuer,
	logger *slog.Logger,
	config RenderPendingArtifactsConfig,
) *RenderPendingArtifactsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRenderPendingArtifactsConfig().BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRenderPendingArtifactsConfig().Timeout
	}

	return &RenderPendingArtifactsJob{
		certRepo: certRepo,
		issuer:   issuer,
		logger:   logger.With("job", "render_pending_artifacts"),
		config:   config,
	}
}

// Name implements scheduler.Job.
func (j *RenderPendingArtifactsJob) Name() string {
	return "render_pending_artifacts"
}

// Description implements scheduler.Job.
func (j *RenderPendingArtifactsJob) Description() string {
	return "Renders PDF artifacts for certificates whose inline render failed"
}

// Run implements scheduler.Job. Failures on individual certificates are
// logged and skipped; the next run picks them up again.
func (j *RenderPendingArtifactsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	pending, err := j.certRepo.ListMissingArtifacts(ctx, j.config.BatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	rendered := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := j.issuer.RenderArtifact(ctx, &pending[i]); err != nil {
			j.logger.Warn("artifact render still failing",
				"number", pending[i].Number,
				"error", err,
			)
			continue
		}
		rendered++
	}

	j.logger.Info("artifact backfill finished",
		"pending", len(pending),
		"rendered", rendered,
	)

	return nil
}
