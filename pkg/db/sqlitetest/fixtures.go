package sqlitetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
)

func mustCreate(t testing.TB, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

// User inserts a customer.
func User(t testing.TB, db *gorm.DB) models.User {
	t.Helper()
	id := uuid.New()
	u := models.User{
		ID:        id,
		Email:     id.String()[:8] + "@example.com",
		FirstName: "Test",
		LastName:  "Customer",
		Role:      enums.UserRoleCustomer,
		IsActive:  true,
	}
	mustCreate(t, db, &u)
	return u
}

// Provider inserts an active provider; mutate adjusts it before insert.
func Provider(t testing.TB, db *gorm.DB, owner uuid.UUID, mutate ...func(*models.Provider)) models.Provider {
	t.Helper()
	p := models.Provider{
		OwnerUserID:            owner,
		Name:                   "Glow Studio",
		Currency:               "USD",
		DepositPercentage:      decimal.Zero,
		OffersBusinessLocation: true,
		TravelFee:              decimal.Zero,
		IsActive:               true,
	}
	for _, fn := range mutate {
		fn(&p)
	}
	mustCreate(t, db, &p)
	return p
}

// Location inserts an active business location.
func Location(t testing.TB, db *gorm.DB, providerID uuid.UUID) models.ProviderLocation {
	t.Helper()
	l := models.ProviderLocation{
		ProviderID:   providerID,
		Label:        "Main",
		AddressLine1: "1 Main St",
		City:         "Austin",
		Region:       "TX",
		PostalCode:   "78701",
		Country:      "US",
		IsActive:     true,
	}
	mustCreate(t, db, &l)
	return l
}

// Offering inserts an active offering.
func Offering(t testing.TB, db *gorm.DB, providerID uuid.UUID, price string, minutes int) models.Offering {
	t.Helper()
	o := models.Offering{
		ProviderID:      providerID,
		Name:            "Cut " + price,
		Price:           decimal.RequireFromString(price),
		DurationMinutes: minutes,
		IsActive:        true,
	}
	mustCreate(t, db, &o)
	return o
}

// Staff inserts an active staff member who performs the given offerings.
func Staff(t testing.TB, db *gorm.DB, providerID uuid.UUID, offerings ...uuid.UUID) models.StaffMember {
	t.Helper()
	s := models.StaffMember{ProviderID: providerID, Name: "Stylist", IsActive: true}
	mustCreate(t, db, &s)
	for _, offeringID := range offerings {
		mustCreate(t, db, &models.StaffOffering{StaffID: s.ID, OfferingID: offeringID})
	}
	return s
}

// Product inserts a retail product.
func Product(t testing.TB, db *gorm.DB, providerID uuid.UUID, price string, trackStock bool, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ProviderID:    providerID,
		Name:          "Serum",
		Price:         decimal.RequireFromString(price),
		TrackStock:    trackStock,
		StockQuantity: stock,
		IsActive:      true,
	}
	mustCreate(t, db, &p)
	return p
}

// Resource inserts an active resource of kind.
func Resource(t testing.TB, db *gorm.DB, providerID uuid.UUID, kind string) models.Resource {
	t.Helper()
	r := models.Resource{ProviderID: providerID, Name: kind, Kind: kind, IsActive: true}
	mustCreate(t, db, &r)
	return r
}

// GiftCard inserts an active gift card.
func GiftCard(t testing.TB, db *gorm.DB, code, balance string) models.GiftCard {
	t.Helper()
	g := models.GiftCard{
		Code:     code,
		Currency: "USD",
		Balance:  decimal.RequireFromString(balance),
		Status:   enums.GiftCardStatusActive,
	}
	mustCreate(t, db, &g)
	return g
}

// Wallet inserts a wallet for the user.
func Wallet(t testing.TB, db *gorm.DB, userID uuid.UUID, balance string) models.Wallet {
	t.Helper()
	w := models.Wallet{UserID: userID, Currency: "USD", Balance: decimal.RequireFromString(balance)}
	mustCreate(t, db, &w)
	return w
}

// Booking inserts a minimal booking holding the window for staffID.
func Booking(t testing.TB, db *gorm.DB, customerID, providerID, staffID, offeringID uuid.UUID, start time.Time, minutes int, total string) models.Booking {
	t.Helper()
	amount := decimal.RequireFromString(total)
	end := start.Add(time.Duration(minutes) * time.Minute)
	b := models.Booking{
		BookingNumber:    "BK-" + uuid.NewString()[:8],
		CustomerID:       customerID,
		ProviderID:       providerID,
		Status:           enums.BookingStatusConfirmed,
		LocationType:     enums.LocationTypeBusinessLocation,
		ScheduledStartAt: start,
		ScheduledEndAt:   end,
		Currency:         "USD",
		Subtotal:         amount,
		CommissionBase:   amount,
		TotalAmount:      amount,
		AmountToCollect:  amount,
		PaymentOption:    enums.PaymentOptionFull,
		PaymentMethod:    enums.PaymentMethodCard,
		PaymentStatus:    enums.PaymentStatusPending,
	}
	mustCreate(t, db, &b)
	mustCreate(t, db, &models.BookingService{
		BookingID:        b.ID,
		OfferingID:       offeringID,
		StaffID:          staffID,
		Price:            amount,
		DurationMinutes:  minutes,
		ScheduledStartAt: start,
		ScheduledEndAt:   end,
	})
	return b
}
