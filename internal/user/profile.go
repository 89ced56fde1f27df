// Package user serves profile edits and public farmer and broker profiles.
package user

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/auth"
	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/payments"
	"github.com/sudo-init-do/umoja/internal/store"
)

var maxFarmSize = decimal.RequireFromString("99999999.99")

// ProfileUpdate carries the fields a user wants to change. Nil leaves a
// field alone; an empty string clears an optional one.
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`

	Location *string `json:"location"`
	IDNumber *string `json:"id_number"`

	FarmName *string          `json:"farm_name"`
	FarmSize *decimal.Decimal `json:"farm_size"`

	BankName          *string `json:"bank_name"`
	AccountNumber     *string `json:"account_number"`
	MpesaNumber       *string `json:"mpesa_number"`
	PaymentPreference *string `json:"payment_preference"`

	EmailNotifications *bool `json:"email_notifications"`
	SMSNotifications   *bool `json:"sms_notifications"`
}

type Profiles struct {
	store store.Store
	now   func() time.Time
}

func NewProfiles(st store.Store) *Profiles {
	return &Profiles{store: st, now: time.Now}
}

// Update applies in to the user's profile and returns the saved user.
func (p *Profiles) Update(ctx context.Context, userID string, in ProfileUpdate) (*domain.User, error) {
	var saved *domain.User
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := apply(u, in); err != nil {
			return err
		}
		u.UpdatedAt = p.now().UTC()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		saved = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// PublicProfile is what anyone may see about a farmer or broker.
type PublicProfile struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Role      string              `json:"role"`
	Location  string              `json:"location,omitempty"`
	FarmName  string              `json:"farm_name,omitempty"`
	FarmSize  decimal.NullDecimal `json:"farm_size"`
	CreatedAt time.Time           `json:"created_at"`
}

// Public returns the shareable part of a farmer's or broker's profile.
func (p *Profiles) Public(ctx context.Context, userID string) (*PublicProfile, error) {
	var u *domain.User
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u.Role == domain.RoleAdmin {
		return nil, domain.NotFound("user not found")
	}
	return &PublicProfile{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		Location:  u.Location,
		FarmName:  u.FarmName,
		FarmSize:  u.FarmSize,
		CreatedAt: u.CreatedAt,
	}, nil
}

func apply(u *domain.User, in ProfileUpdate) error {
	text := []struct {
		field string
		src   *string
		dst   *string
		max   int
	}{
		{"phone", in.Phone, &u.Phone, 15},
		{"location", in.Location, &u.Location, 255},
		{"id_number", in.IDNumber, &u.IDNumber, 20},
		{"farm_name", in.FarmName, &u.FarmName, 255},
		{"bank_name", in.BankName, &u.BankName, 100},
		{"account_number", in.AccountNumber, &u.AccountNumber, 50},
	}
	for _, f := range text {
		if f.src == nil {
			continue
		}
		v := strings.TrimSpace(*f.src)
		if utf8.RuneCountInString(v) > f.max {
			return domain.Validation("%s must be at most %d characters", f.field, f.max)
		}
		*f.dst = v
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.Validation("name cannot be empty")
		}
		u.Name = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if !auth.ValidEmail(email) {
			return domain.Validation("a valid email is required")
		}
		u.Email = email
	}

	if u.Role != domain.RoleFarmer && (in.FarmName != nil || in.FarmSize != nil) {
		return domain.Validation("farm details only apply to farmers")
	}
	if in.FarmSize != nil {
		size := *in.FarmSize
		switch {
		case size.IsNegative():
			return domain.Validation("farm_size cannot be negative")
		case size.GreaterThan(maxFarmSize) || !size.Equal(size.Round(2)):
			return domain.Validation("farm_size supports at most 8 whole digits and two decimal places")
		}
		u.FarmSize = decimal.NewNullDecimal(size)
	}

	if in.MpesaNumber != nil {
		u.MpesaNumber = ""
		if strings.TrimSpace(*in.MpesaNumber) != "" {
			msisdn, err := payments.NormalizePhone(*in.MpesaNumber)
			if err != nil {
				return err
			}
			u.MpesaNumber = msisdn
		}
	}
	if in.PaymentPreference != nil {
		pref := strings.ToLower(strings.TrimSpace(*in.PaymentPreference))
		if !domain.Contains(domain.PaymentPreferences, pref) {
			return domain.Validation("payment_preference must be one of %s", strings.Join(domain.PaymentPreferences, ", "))
		}
		u.PaymentPreference = pref
	}
	if u.PaymentPreference == domain.PreferBank && (u.BankName == "" || u.AccountNumber == "") {
		return domain.Validation("bank_name and account_number are required for bank payouts")
	}

	if in.EmailNotifications != nil {
		u.EmailNotifications = *in.EmailNotifications
	}
	if in.SMSNotifications != nil {
		u.SMSNotifications = *in.SMSNotifications
	}
	return nil
}
