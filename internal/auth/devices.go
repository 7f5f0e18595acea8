package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"classattend/internal/apperr"
	"classattend/internal/store"
)

// RoleDevice is the role carried by recognition front-end tokens.
const RoleDevice = "device"

// Devices registers recognition front-ends and rotates their refresh tokens.
type Devices struct {
	db     *store.DB
	signer *Signer
	now    func() time.Time
}

// NewDevices creates a device registry.
func NewDevices(db *store.DB, signer *Signer) *Devices {
	return &Devices{db: db, signer: signer, now: time.Now}
}

// Signer returns the token signer.
func (d *Devices) Signer() *Signer { return d.signer }

func upsertDevice(ctx context.Context, q sqlx.ExtContext, deviceID, label string) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO devices (device_id, label)
		VALUES (?, ?)
		ON CONFLICT (device_id) DO NOTHING
	`), deviceID, label)
	return err
}

func saveRefreshToken(ctx context.Context, q sqlx.ExtContext, deviceID, token string, expiresAt time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO refresh_tokens (token, device_id, expires_at)
		VALUES (?, ?, ?)
	`), token, deviceID, expiresAt.UTC())
	return err
}

// Register ensures the device exists and issues a fresh token pair.
func (d *Devices) Register(ctx context.Context, deviceID, label string) (TokenPair, error) {
	const op = "auth.Register"
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return TokenPair{}, apperr.Validation(op, "device id required")
	}
	pair, err := d.signer.Issue(deviceID, RoleDevice)
	if err != nil {
		return TokenPair{}, apperr.E(apperr.KindUnknown, op, err)
	}
	err = d.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := upsertDevice(ctx, tx, deviceID, label); err != nil {
			return apperr.Storage(op, err)
		}
		return apperr.Storage(op, saveRefreshToken(ctx, tx, deviceID, pair.RefreshToken, pair.RefreshExp))
	})
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new pair. The old
// refresh token is revoked in the same transaction.
func (d *Devices) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "auth.Refresh"
	claims, err := d.signer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, apperr.E(apperr.KindValidation, op, err)
	}

	var pair TokenPair
	err = d.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var row struct {
			DeviceID  string    `db:"device_id"`
			ExpiresAt time.Time `db:"expires_at"`
			Revoked   bool      `db:"revoked"`
		}
		err := tx.GetContext(ctx, &row, tx.Rebind(`
			SELECT device_id, expires_at, revoked FROM refresh_tokens WHERE token = ?
		`), refreshToken)
		if store.IsNoRows(err) {
			return apperr.NotFound(op, "refresh token unknown")
		}
		if err != nil {
			return apperr.Storage(op, err)
		}
		if row.Revoked || !d.now().Before(row.ExpiresAt) || row.DeviceID != claims.Subject {
			return apperr.Validation(op, "refresh token revoked or expired")
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE refresh_tokens SET revoked = TRUE WHERE token = ?`), refreshToken); err != nil {
			return apperr.Storage(op, err)
		}
		if pair, err = d.signer.Issue(row.DeviceID, RoleDevice); err != nil {
			return err
		}
		return apperr.Storage(op, saveRefreshToken(ctx, tx, row.DeviceID, pair.RefreshToken, pair.RefreshExp))
	})
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Revoke marks a refresh token revoked.
func (d *Devices) Revoke(ctx context.Context, refreshToken string) error {
	_, err := d.db.ExecContext(ctx, d.db.Rebind(`UPDATE refresh_tokens SET revoked = TRUE WHERE token = ?`), refreshToken)
	return apperr.Storage("auth.Revoke", err)
}
