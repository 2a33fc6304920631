package bookings

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glowbook/glowbook-backend/internal/repo"
	"github.com/glowbook/glowbook-backend/internal/validation"
	dbpkg "github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// Repository persists bookings and the rows that hang off them.
type Repository struct {
	repo.Base
}

// NewRepository binds a repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindConflicts returns the ids of slot-holding bookings whose services
// overlap any of the windows. Intervals are half-open so back-to-back
// appointments do not collide.
func (r *Repository) FindConflicts(ctx context.Context, windows []validation.Window) ([]uuid.UUID, error) {
	return r.conflicts(ctx, windows, false)
}

// LockConflicts is FindConflicts under row locks. It must run inside the
// reserving transaction. On Postgres it first takes a transaction-scoped
// advisory lock per staff member so two writers for an empty window still
// serialize.
func (r *Repository) LockConflicts(ctx context.Context, windows []validation.Window) ([]uuid.UUID, error) {
	conn := r.DB(ctx)
	if dbpkg.IsPostgres(conn) {
		for _, staffID := range distinctStaff(windows) {
			if err := conn.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", staffID.String()).Error; err != nil {
				return nil, err
			}
		}
	}
	return r.conflicts(ctx, windows, true)
}

func (r *Repository) conflicts(ctx context.Context, windows []validation.Window, lock bool) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{}
	out := []uuid.UUID{}
	for _, w := range windows {
		query := r.DB(ctx).
			Model(&models.BookingService{}).
			Joins("JOIN bookings ON bookings.id = booking_services.booking_id").
			Where("booking_services.staff_id = ?", w.StaffID).
			Where("booking_services.scheduled_start_at < ? AND booking_services.scheduled_end_at > ?", w.EndAt.UTC(), w.StartAt.UTC()).
			Where("bookings.status NOT IN ?", enums.SlotReleasingStatuses())
		if lock {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "booking_services"}})
		}
		var ids []uuid.UUID
		if err := query.Pluck("booking_services.booking_id", &ids).Error; err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

func distinctStaff(windows []validation.Window) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := make([]uuid.UUID, 0, len(windows))
	for _, w := range windows {
		if _, ok := seen[w.StaffID]; ok {
			continue
		}
		seen[w.StaffID] = struct{}{}
		out = append(out, w.StaffID)
	}
	// fixed lock order across writers
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// CreateBooking inserts the booking row only; services are written separately.
func (r *Repository) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return r.DB(ctx).Omit(clause.Associations).Create(booking).Error
}

func (r *Repository) CreateServices(ctx context.Context, services []models.BookingService) error {
	if len(services) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&services).Error
}

func (r *Repository) CreateAddons(ctx context.Context, rows []models.BookingAddon) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *Repository) CreateProducts(ctx context.Context, rows []models.BookingProduct) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *Repository) CreateResources(ctx context.Context, rows []models.BookingResource) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *Repository) CreateEvent(ctx context.Context, event *models.BookingEvent) error {
	return r.DB(ctx).Create(event).Error
}

// CreateGroupBooking inserts the group header and its participants.
func (r *Repository) CreateGroupBooking(ctx context.Context, group *models.GroupBooking) error {
	return r.DB(ctx).Create(group).Error
}

// AttachGroup links the primary booking to its group.
func (r *Repository) AttachGroup(ctx context.Context, bookingID, groupID uuid.UUID) error {
	return r.DB(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Update("group_booking_id", groupID).Error
}

// DecrementStock lowers a tracked product's stock, never below zero.
func (r *Repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	expr := "MAX(stock_quantity - ?, 0)"
	if dbpkg.IsPostgres(r.DB(ctx)) {
		expr = "GREATEST(stock_quantity - ?, 0)"
	}
	return r.DB(ctx).Model(&models.Product{}).
		Where("id = ? AND track_stock = ?", productID, true).
		Update("stock_quantity", gorm.Expr(expr, qty)).Error
}

// BusyResources reports which of the resources are already held by a
// slot-holding booking during [start, end).
func (r *Repository) BusyResources(ctx context.Context, resourceIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	if len(resourceIDs) == 0 {
		return out, nil
	}
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.BookingResource{}).
		Joins("JOIN bookings ON bookings.id = booking_resources.booking_id").
		Where("booking_resources.resource_id IN ?", resourceIDs).
		Where("booking_resources.starts_at < ? AND booking_resources.ends_at > ?", end.UTC(), start.UTC()).
		Where("bookings.status NOT IN ?", enums.SlotReleasingStatuses()).
		Pluck("booking_resources.resource_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// FindByID loads a booking with its services, or nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.DB(ctx).
		Preload("Services", func(db *gorm.DB) *gorm.DB { return db.Order("scheduled_start_at ASC") }).
		First(&booking, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
