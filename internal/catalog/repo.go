package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/repo"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// StaffAssignment pairs a staff member with an offering they perform.
type StaffAssignment struct {
	StaffID    uuid.UUID
	OfferingID uuid.UUID
}

// Repository resolves the reference data a booking draft points at.
type Repository struct {
	repo.Base
}

// NewRepository binds the catalog repository to the provided connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindUser returns the user or nil when missing.
func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &user, nil
}

// FindActiveProvider returns the provider when it exists and is active.
func (r *Repository) FindActiveProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	err := r.DB(ctx).Where("id = ? AND is_active = ?", id, true).Take(&provider).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &provider, nil
}

// FindActiveLocation returns a provider location scoped to the provider.
func (r *Repository) FindActiveLocation(ctx context.Context, providerID, locationID uuid.UUID) (*models.ProviderLocation, error) {
	var location models.ProviderLocation
	err := r.DB(ctx).
		Where("id = ? AND provider_id = ? AND is_active = ?", locationID, providerID, true).
		Take(&location).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &location, nil
}

// ActiveOfferings returns the active offerings of the provider keyed by id.
func (r *Repository) ActiveOfferings(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Offering, error) {
	out := map[uuid.UUID]models.Offering{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Offering
	err := r.DB(ctx).
		Where("provider_id = ? AND is_active = ? AND id IN ?", providerID, true, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ActiveStaff returns the active staff of the provider keyed by id.
func (r *Repository) ActiveStaff(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.StaffMember, error) {
	out := map[uuid.UUID]models.StaffMember{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.StaffMember
	err := r.DB(ctx).
		Where("provider_id = ? AND is_active = ? AND id IN ?", providerID, true, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// StaffAssignments returns which of the given staff perform which offerings.
func (r *Repository) StaffAssignments(ctx context.Context, staffIDs []uuid.UUID) (map[StaffAssignment]bool, error) {
	out := map[StaffAssignment]bool{}
	if len(staffIDs) == 0 {
		return out, nil
	}
	var rows []models.StaffOffering
	if err := r.DB(ctx).Where("staff_id IN ?", staffIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[StaffAssignment{StaffID: row.StaffID, OfferingID: row.OfferingID}] = true
	}
	return out, nil
}

// ActiveAddons returns the active add-ons of the provider keyed by id.
func (r *Repository) ActiveAddons(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Addon, error) {
	out := map[uuid.UUID]models.Addon{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Addon
	err := r.DB(ctx).
		Where("provider_id = ? AND is_active = ? AND id IN ?", providerID, true, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ActiveProducts returns the active retail products of the provider keyed by id.
func (r *Repository) ActiveProducts(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := map[uuid.UUID]models.Product{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	err := r.DB(ctx).
		Where("provider_id = ? AND is_active = ? AND id IN ?", providerID, true, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindPromoCode looks a code up case-insensitively.
func (r *Repository) FindPromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.DB(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Take(&promo).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &promo, nil
}

// FindActivePackage returns the provider's package with its offerings.
func (r *Repository) FindActivePackage(ctx context.Context, providerID, packageID uuid.UUID) (*models.ServicePackage, error) {
	var pkg models.ServicePackage
	err := r.DB(ctx).
		Preload("Offerings").
		Where("id = ? AND provider_id = ? AND is_active = ?", packageID, providerID, true).
		Take(&pkg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &pkg, nil
}

// FindActiveMembership returns the user's membership when active at now.
func (r *Repository) FindActiveMembership(ctx context.Context, userID, membershipID uuid.UUID, now time.Time) (*models.Membership, error) {
	var membership models.Membership
	err := r.DB(ctx).
		Where("id = ? AND user_id = ? AND status = ?", membershipID, userID, enums.MembershipStatusActive).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Take(&membership).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &membership, nil
}

// LoyaltyBalance returns the user's redeemable points, zero without an account.
func (r *Repository) LoyaltyBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var account models.LoyaltyAccount
	err := r.DB(ctx).Where("user_id = ?", userID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.PointsBalance, nil
}

// OfferingRequirements returns the resource kinds each offering occupies.
func (r *Repository) OfferingRequirements(ctx context.Context, offeringIDs []uuid.UUID) (map[uuid.UUID][]models.OfferingResource, error) {
	out := map[uuid.UUID][]models.OfferingResource{}
	if len(offeringIDs) == 0 {
		return out, nil
	}
	var rows []models.OfferingResource
	err := r.DB(ctx).Where("offering_id IN ?", offeringIDs).Order("kind").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OfferingID] = append(out[row.OfferingID], row)
	}
	return out, nil
}

// ActiveResources returns the provider's active resources keyed by id.
func (r *Repository) ActiveResources(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Resource, error) {
	out := map[uuid.UUID]models.Resource{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Resource
	err := r.DB(ctx).
		Where("provider_id = ? AND is_active = ? AND id IN ?", providerID, true, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ResourcesByKind lists the provider's active resources of the given kinds,
// ordered by name so auto-assignment is deterministic.
func (r *Repository) ResourcesByKind(ctx context.Context, providerID uuid.UUID, kinds []string) ([]models.Resource, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	var rows []models.Resource
	err := r.DB(ctx).
		Where("provider_id = ? AND is_active = ? AND kind IN ?", providerID, true, kinds).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

// FindSavedPaymentMethod returns a card the user stored with a gateway.
func (r *Repository) FindSavedPaymentMethod(ctx context.Context, userID, id uuid.UUID) (*models.SavedPaymentMethod, error) {
	var method models.SavedPaymentMethod
	err := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&method).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &method, nil
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
