package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/validation"
	dbpkg "github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
	"github.com/glowbook/glowbook-backend/pkg/outbox/payloads"
)

const (
	StepGroupBooking     = "group_booking"
	StepResources        = "resources"
	StepAddons           = "addons"
	StepProducts         = "products"
	StepOverrideAuditLog = "conflict_override_audit"
)

type postCreationStep struct {
	name string
	run  func(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData) error
}

// RunPostCreation performs the follow-up writes of a committed booking. Each
// step runs in its own transaction; a failing step is logged, queued as a
// booking_post_creation_failed event and does not stop the others. The
// returned error aggregates every failed step.
func (s *service) RunPostCreation(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData) error {
	if booking == nil || v == nil {
		return errors.New("booking and validated data required")
	}
	steps := []postCreationStep{
		{name: StepGroupBooking, run: s.createGroupBooking},
		{name: StepResources, run: s.assignResources},
		{name: StepAddons, run: s.createAddons},
		{name: StepProducts, run: s.createProducts},
		{name: StepOverrideAuditLog, run: s.auditOverride},
	}

	var errs error
	for _, step := range steps {
		err := step.run(ctx, booking, v)
		if err == nil {
			continue
		}
		if errors.Is(err, errFeatureNotDeployed) {
			logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, booking.ID.String()), map[string]any{"step": step.name})
			s.logg.Warn(logCtx, "booking.post_creation_step_skipped")
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.name, err))
		s.recordStepFailure(ctx, booking, step.name, err)
	}
	return errs
}

func (s *service) recordStepFailure(ctx context.Context, booking *models.Booking, step string, stepErr error) {
	logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, booking.ID.String()), map[string]any{"step": step})
	s.logg.Error(logCtx, "booking.post_creation_step_failed", stepErr)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		meta, err := json.Marshal(map[string]string{"step": step, "error": stepErr.Error()})
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateEvent(ctx, &models.BookingEvent{
			BookingID:   booking.ID,
			Type:        enums.BookingEventTypePostCreationFailed,
			ActorUserID: booking.CustomerID,
			Metadata:    meta,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingPostCreationFailed,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Data: payloads.BookingPostCreationFailedEvent{
				BookingID: booking.ID,
				Step:      step,
				Error:     stepErr.Error(),
			},
		})
	})
	if err != nil {
		s.logg.Error(logCtx, "booking.post_creation_failure_not_recorded", err)
	}
}

func (s *service) createGroupBooking(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData) error {
	if v.Group == nil || len(v.Group.Participants) == 0 {
		return nil
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		participants := make([]models.GroupBookingParticipant, 0, len(v.Group.Participants))
		for _, p := range v.Group.Participants {
			participants = append(participants, models.GroupBookingParticipant{
				Name:   p.Name,
				Email:  p.Email,
				Phone:  p.Phone,
				UserID: p.UserID,
			})
		}
		// organizer plus guests
		group := &models.GroupBooking{
			OrganizerID:      booking.CustomerID,
			PrimaryBookingID: booking.ID,
			ProviderID:       booking.ProviderID,
			ParticipantCount: len(participants) + 1,
			Participants:     participants,
		}
		if err := repo.CreateGroupBooking(ctx, group); err != nil {
			return err
		}
		if err := repo.AttachGroup(ctx, booking.ID, group.ID); err != nil {
			return err
		}
		meta, err := json.Marshal(map[string]any{"group_booking_id": group.ID, "participant_count": group.ParticipantCount})
		if err != nil {
			return err
		}
		if err := repo.CreateEvent(ctx, &models.BookingEvent{
			BookingID:   booking.ID,
			Type:        enums.BookingEventTypeGroupBookingCreated,
			ActorUserID: booking.CustomerID,
			Metadata:    meta,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGroupBookingCreated,
			AggregateType: enums.AggregateGroupBooking,
			AggregateID:   group.ID,
			Data: payloads.GroupBookingCreatedEvent{
				GroupBookingID:   group.ID,
				PrimaryBookingID: booking.ID,
				OrganizerID:      booking.CustomerID,
				ParticipantCount: group.ParticipantCount,
			},
		}); err != nil {
			return err
		}
		booking.GroupBookingID = &group.ID
		return nil
	})
	if dbpkg.IsMissingTable(err) {
		return errFeatureNotDeployed
	}
	return err
}

func (s *service) assignResources(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData) error {
	if len(booking.Services) == 0 {
		return nil
	}
	if len(v.Resources) > 0 {
		rows := make([]models.BookingResource, 0, len(v.Resources))
		for _, r := range v.Resources {
			if r.ServiceIndex < 0 || r.ServiceIndex >= len(booking.Services) {
				return fmt.Errorf("resource %s references unknown service %d", r.ResourceID, r.ServiceIndex)
			}
			svc := booking.Services[r.ServiceIndex]
			rows = append(rows, resourceRow(booking.ID, svc, r.ResourceID))
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).CreateResources(ctx, rows)
		})
	}
	return s.autoAssignResources(ctx, booking)
}

func (s *service) autoAssignResources(ctx context.Context, booking *models.Booking) error {
	offeringIDs := make([]uuid.UUID, 0, len(booking.Services))
	seen := map[uuid.UUID]struct{}{}
	for _, svc := range booking.Services {
		if _, ok := seen[svc.OfferingID]; ok {
			continue
		}
		seen[svc.OfferingID] = struct{}{}
		offeringIDs = append(offeringIDs, svc.OfferingID)
	}
	requirements, err := s.catalog.OfferingRequirements(ctx, offeringIDs)
	if err != nil {
		return fmt.Errorf("load resource requirements: %w", err)
	}
	kinds := []string{}
	kindSeen := map[string]struct{}{}
	for _, reqs := range requirements {
		for _, req := range reqs {
			if _, ok := kindSeen[req.Kind]; ok {
				continue
			}
			kindSeen[req.Kind] = struct{}{}
			kinds = append(kinds, req.Kind)
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	pool, err := s.catalog.ResourcesByKind(ctx, booking.ProviderID, kinds)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}
	byKind := map[string][]models.Resource{}
	for _, res := range pool {
		byKind[res.Kind] = append(byKind[res.Kind], res)
	}

	var shortfall error
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows := []models.BookingResource{}
		for _, svc := range booking.Services {
			for _, req := range requirements[svc.OfferingID] {
				candidates := byKind[req.Kind]
				ids := make([]uuid.UUID, 0, len(candidates))
				for _, c := range candidates {
					ids = append(ids, c.ID)
				}
				busy, err := repo.BusyResources(ctx, ids, svc.ScheduledStartAt, svc.ScheduledEndAt)
				if err != nil {
					return err
				}
				need := req.Quantity
				if need <= 0 {
					need = 1
				}
				for _, c := range candidates {
					if need == 0 {
						break
					}
					if busy[c.ID] || claimed(rows, c.ID, svc) {
						continue
					}
					rows = append(rows, resourceRow(booking.ID, svc, c.ID))
					need--
				}
				if need > 0 {
					shortfall = multierr.Append(shortfall, fmt.Errorf("no free %s for service %s", req.Kind, svc.ID))
				}
			}
		}
		return repo.CreateResources(ctx, rows)
	})
	if err != nil {
		return err
	}
	return shortfall
}

func claimed(rows []models.BookingResource, resourceID uuid.UUID, svc models.BookingService) bool {
	for _, row := range rows {
		if row.ResourceID != resourceID {
			continue
		}
		if row.StartsAt.Before(svc.ScheduledEndAt) && row.EndsAt.After(svc.ScheduledStartAt) {
			return true
		}
	}
	return false
}

func resourceRow(bookingID uuid.UUID, svc models.BookingService, resourceID uuid.UUID) models.BookingResource {
	return models.BookingResource{
		BookingID:        bookingID,
		BookingServiceID: svc.ID,
		ResourceID:       resourceID,
		StartsAt:         svc.ScheduledStartAt,
		EndsAt:           svc.ScheduledEndAt,
	}
}

func (s *service) createAddons(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData) error {
	if len(v.AddonLines) == 0 {
		return nil
	}
	rows := make([]models.BookingAddon, 0, len(v.AddonLines))
	for _, line := range v.AddonLines {
		rows = append(rows, models.BookingAddon{
			BookingID: booking.ID,
			AddonID:   line.AddonID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateAddons(ctx, rows)
	})
}

func (s *service) createProducts(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData) error {
	if len(v.ProductLines) == 0 {
		return nil
	}
	rows := make([]models.BookingProduct, 0, len(v.ProductLines))
	for _, line := range v.ProductLines {
		rows = append(rows, models.BookingProduct{
			BookingID: booking.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateProducts(ctx, rows); err != nil {
			return err
		}
		for _, line := range v.ProductLines {
			if product, ok := v.Products[line.ProductID]; ok && !product.TrackStock {
				continue
			}
			if err := repo.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) auditOverride(ctx context.Context, booking *models.Booking, _ *validation.ValidatedBookingData) error {
	if !booking.ConflictOverride {
		return nil
	}
	meta := decodeMetadata(booking.Metadata)
	actor := booking.CustomerID
	if meta.OverrideAuthorizedBy != nil {
		actor = *meta.OverrideAuthorizedBy
	}
	raw, err := json.Marshal(map[string]any{"conflicting_booking_ids": meta.ConflictingBookingIDs})
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateEvent(ctx, &models.BookingEvent{
			BookingID:   booking.ID,
			Type:        enums.BookingEventTypeConflictOverridden,
			ActorUserID: actor,
			Metadata:    raw,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingConflictOverridden,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         &outbox.ActorRef{UserID: actor, ProviderID: &booking.ProviderID},
			Data: payloads.BookingConflictOverriddenEvent{
				BookingID:             booking.ID,
				ConflictingBookingIDs: meta.ConflictingBookingIDs,
				AuthorizedBy:          actor,
			},
		})
	})
}
