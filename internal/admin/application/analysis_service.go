package application

import (
	"context"
	"errors"
	"log/slog"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

const analysisWriteAttempts = 3

type analysisService struct {
	submissions SubmissionRepository
	logger      *slog.Logger
}

func NewAnalysisService(submissions SubmissionRepository, logger *slog.Logger) AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &analysisService{submissions: submissions, logger: logger.With("component", "analysis")}
}

// Apply は楽観的排他で解析結果を投稿へ反映する。version 不一致なら読み直して再試行する。
// pending でなくなった投稿には何もしない。
func (s *analysisService) Apply(ctx context.Context, submissionID string, result admindomain.AnalysisResult) error {
	for attempt := 0; attempt < analysisWriteAttempts; attempt++ {
		sub, err := s.submissions.FindByID(ctx, submissionID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("submission", submissionID)
		}
		if err != nil {
			return apperror.Dependency("load submission", err)
		}
		if sub.Status != admindomain.SubmissionPending {
			s.logger.Info("skip analysis for reviewed submission", "submission_id", submissionID, "status", sub.Status)
			return nil
		}

		sub.ApplyAnalysis(result)
		err = s.submissions.SaveAnalysis(ctx, sub)
		if err == nil {
			if sub.FlaggedForReview {
				s.logger.Warn("submission flagged for review", "submission_id", submissionID)
			}
			return nil
		}
		if !errors.Is(err, apperror.ErrPreconditionFailed) {
			return apperror.Dependency("save analysis", err)
		}
	}
	return apperror.Conflict("ANALYSIS_WRITE_CONFLICT", "submission kept changing while applying analysis")
}
