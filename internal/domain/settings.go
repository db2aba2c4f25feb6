/**
 * @description
 * Tenant-scoped treasury settings. The auto-send configuration is a
 * read-mostly singleton: every eligibility check reads it and an
 * administrator may update it independently. The delay and cap are advisory
 * business thresholds, so readers tolerate the config changing between calls.
 */

package domain

import "time"

// TreasurySettings is the tenant singleton controlling auto-send behaviour.
// MaxAmountCents of nil means no cap.
type TreasurySettings struct {
	AutoSendEnabled    bool      `json:"auto_send_enabled" db:"auto_send_enabled"`
	AutoSendDelayHours int       `json:"auto_send_delay_hours" db:"auto_send_delay_hours"`
	MaxAmountCents     *int64    `json:"auto_send_max_amount_cents,omitempty" db:"auto_send_max_amount_cents"`
	TreasurerEmail     string    `json:"treasurer_email" db:"treasurer_email"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateTreasurySettingsPayload is the DTO for the settings update endpoint.
// Pointer fields distinguish "leave unchanged" from explicit zero values.
type UpdateTreasurySettingsPayload struct {
	AutoSendEnabled    *bool   `json:"auto_send_enabled,omitempty"`
	AutoSendDelayHours *int    `json:"auto_send_delay_hours,omitempty"`
	MaxAmountCents     *int64  `json:"auto_send_max_amount_cents,omitempty"`
	ClearMaxAmount     bool    `json:"clear_max_amount,omitempty"`
	TreasurerEmail     *string `json:"treasurer_email,omitempty"`
}
