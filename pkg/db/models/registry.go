package models

// All lists every persisted model in dependency order. Used by the SQLite
// dev/test path, which has no goose migrations.
func All() []any {
	return []any{
		&User{},
		&Provider{},
		&ProviderLocation{},
		&Offering{},
		&StaffMember{},
		&StaffOffering{},
		&Resource{},
		&OfferingResource{},
		&Addon{},
		&Product{},
		&PromoCode{},
		&ServicePackage{},
		&ServicePackageOffering{},
		&Membership{},
		&LoyaltyAccount{},
		&PlatformSetting{},
		&GroupBooking{},
		&GroupBookingParticipant{},
		&Booking{},
		&BookingService{},
		&BookingAddon{},
		&BookingProduct{},
		&BookingResource{},
		&BookingEvent{},
		&BookingCounter{},
		&GiftCard{},
		&GiftCardReservation{},
		&Wallet{},
		&WalletTransaction{},
		&SavedPaymentMethod{},
		&PaymentTransaction{},
		&FinanceTransaction{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
