package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

type locationService struct {
	locations   LocationRepository
	photos      PhotoStore
	engagements EngagementCleaner
	logger      *slog.Logger
	now         func() time.Time
}

func NewLocationService(locations LocationRepository, photos PhotoStore, engagements EngagementCleaner, logger *slog.Logger) LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &locationService{
		locations:   locations,
		photos:      photos,
		engagements: engagements,
		logger:      logger.With("component", "location_admin"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *locationService) List(ctx context.Context, filter LocationFilter) ([]admindomain.Location, error) {
	if filter.Status != "" {
		if _, err := admindomain.NewLocationStatus(string(filter.Status)); err != nil {
			return nil, apperror.Validation(map[string]string{"status": err.Error()})
		}
	}
	filter.Limit = normalizeLimit(filter.Limit)
	locations, err := s.locations.Find(ctx, filter)
	if err != nil {
		return nil, apperror.Dependency("list locations", err)
	}
	return locations, nil
}

func (s *locationService) Detail(ctx context.Context, id string) (*admindomain.Location, error) {
	return s.load(ctx, id)
}

func (s *locationService) Update(ctx context.Context, id string, cmd UpdateLocationCommand) (*admindomain.Location, error) {
	loc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := apperror.FieldErrors{}
	if cmd.Status != nil {
		status, err := admindomain.NewLocationStatus(*cmd.Status)
		if err != nil {
			errs.Add("status", err.Error())
		}
		loc.Status = status
	}
	if cmd.Description != nil {
		description := strings.TrimSpace(*cmd.Description)
		if utf8.RuneCountInString(description) > admindomain.MaxLocationDescription {
			errs.Add("description", fmt.Sprintf("description must be at most %d characters", admindomain.MaxLocationDescription))
		}
		loc.Description = description
	}
	if cmd.Decorations != nil {
		tags, err := admindomain.NewTagList(*cmd.Decorations)
		if err != nil {
			errs.Add("decorations", err.Error())
		}
		loc.Decorations = tags.Strings()
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	loc.UpdatedAt = s.now()
	if err := s.locations.Update(ctx, loc); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("location", id)
		}
		return nil, apperror.Dependency("update location", err)
	}
	return loc, nil
}

// SoftDelete は status を inactive にするだけで、写真と記録は残す。
func (s *locationService) SoftDelete(ctx context.Context, id string) error {
	inactive := string(admindomain.LocationInactive)
	_, err := s.Update(ctx, id, UpdateLocationCommand{Status: &inactive})
	return err
}

// HardDelete はドキュメント・公開写真・エンゲージメント記録を削除する。
// ドキュメント削除後の後始末は失敗してもログに残して続行する。
func (s *locationService) HardDelete(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.locations.Delete(ctx, id); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return apperror.Dependency("delete location", err)
	}

	if n, err := s.photos.DeletePrefix(ctx, admindomain.PublishedPrefix(id)); err != nil {
		s.logger.Error("failed to delete published photos", "location_id", id, "error", err)
	} else {
		s.logger.Info("deleted published photos", "location_id", id, "count", n)
	}
	if n, err := s.engagements.DeleteByTarget(ctx, id); err != nil {
		s.logger.Error("failed to delete location engagements", "location_id", id, "error", err)
	} else {
		s.logger.Info("deleted location engagements", "location_id", id, "count", n)
	}
	return nil
}

func (s *locationService) load(ctx context.Context, id string) (*admindomain.Location, error) {
	loc, err := s.locations.FindByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("location", id)
	}
	if err != nil {
		return nil, apperror.Dependency("load location", err)
	}
	return loc, nil
}
