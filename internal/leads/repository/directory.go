package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// SalesUser is the agent that owns leads and sends WhatsApp messages.
type SalesUser struct {
	ID    int64
	Name  string
	Phone *string
	Role  string
}

// GeneralSettings is the singleton settings row consulted by the inbound flow.
type GeneralSettings struct {
	CompanyName        string
	WelcomeEnabled     bool
	WelcomeTemplate    string
	OptOutConfirmation string
}

// LookupValue is a resolved row of a code/name lookup table.
type LookupValue struct {
	ID   int64
	Code string
	Name string
}

type lookupTable string

const (
	stageTable  lookupTable = "lead_stages"
	statusTable lookupTable = "lead_statuses"
	sourceTable lookupTable = "lead_sources"
)

// IsSalesSender reports whether any of the sender addresses belongs to one of
// our own agents, either by a connected session JID or by a user phone.
// Session JIDs may carry a device suffix ("62812:7@s.whatsapp.net"), so the
// user part is compared against the phones as well.
func (r *Repository) IsSalesSender(ctx context.Context, jids, phones []string) (bool, error) {
	if len(jids) == 0 && len(phones) == 0 {
		return false, nil
	}
	if jids == nil {
		jids = []string{}
	}
	if phones == nil {
		phones = []string{}
	}
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM whatsapp_sessions s
			WHERE s.wa_user_jid IS NOT NULL
			  AND (
				s.wa_user_jid = ANY($1::text[])
				OR split_part(split_part(s.wa_user_jid, '@', 1), ':', 1) = ANY($2::text[])
			  )
		) OR EXISTS (
			SELECT 1 FROM users u
			WHERE u.phone IS NOT NULL
			  AND regexp_replace(u.phone, '\D', '', 'g') = ANY($2::text[])
		)
	`, jids, phones).Scan(&exists)
	return exists, err
}

// IsExcludedContact reports whether the agent has excluded this phone from lead capture.
func (r *Repository) IsExcludedContact(ctx context.Context, salesID int64, phone string) (bool, error) {
	if phone == "" {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sales_excluded_contacts
			WHERE sales_id = $1 AND is_active = true
			  AND regexp_replace(phone, '\D', '', 'g') = $2
		)
	`, salesID, phone).Scan(&exists)
	return exists, err
}

func (r *Repository) GetSalesUser(ctx context.Context, id int64) (SalesUser, error) {
	var u SalesUser
	err := r.db.QueryRow(ctx, `
		SELECT id, name, phone, role FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Phone, &u.Role)
	if err != nil {
		return SalesUser{}, notFound(err)
	}
	return u, nil
}

// GetGeneralSettings returns the settings row, or zero-value settings when none exists.
func (r *Repository) GetGeneralSettings(ctx context.Context) (GeneralSettings, error) {
	var s GeneralSettings
	err := r.db.QueryRow(ctx, `
		SELECT company_name, wa_welcome_enabled, wa_welcome_template, wa_optout_confirmation
		FROM general_settings WHERE id = 1
	`).Scan(&s.CompanyName, &s.WelcomeEnabled, &s.WelcomeTemplate, &s.OptOutConfirmation)
	if errors.Is(err, pgx.ErrNoRows) {
		return GeneralSettings{}, nil
	}
	return s, err
}

func (r *Repository) LookupStage(ctx context.Context, code, name string) (LookupValue, error) {
	return r.lookup(ctx, stageTable, code, name)
}

func (r *Repository) LookupStatus(ctx context.Context, code, name string) (LookupValue, error) {
	return r.lookup(ctx, statusTable, code, name)
}

func (r *Repository) LookupSource(ctx context.Context, code, name string) (LookupValue, error) {
	return r.lookup(ctx, sourceTable, code, name)
}

// lookup matches by code first and falls back to a case-insensitive name match.
func (r *Repository) lookup(ctx context.Context, table lookupTable, code, name string) (LookupValue, error) {
	var v LookupValue
	err := r.db.QueryRow(ctx, `
		SELECT id, code, name FROM `+string(table)+`
		WHERE code = $1 OR lower(name) = lower($2)
		ORDER BY (code = $1) DESC, id ASC
		LIMIT 1
	`, code, name).Scan(&v.ID, &v.Code, &v.Name)
	if err != nil {
		return LookupValue{}, notFound(err)
	}
	return v, nil
}
