package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aidledger/internal/donation/models"
	"aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

// PostgresStore is the durable registry. ID assignment goes through a
// single-row counter table locked FOR UPDATE, because a sequence would leave
// gaps on rollback and the registry guarantees gapless monotonic IDs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the registry tables. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS donations (
			id               BIGINT PRIMARY KEY,
			partner          TEXT NOT NULL,
			amount           BIGINT NOT NULL,
			state            SMALLINT NOT NULL,
			sponsor          TEXT NOT NULL,
			beneficiary      TEXT NOT NULL DEFAULT '',
			approver_label   TEXT NOT NULL DEFAULT '',
			merchant_label   TEXT,
			voucher_value    BIGINT,
			merchant_account TEXT,
			voucher_used     BOOLEAN,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS donation_ids (
			next BIGINT NOT NULL
		);
		INSERT INTO donation_ids (next)
		SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM donation_ids);
	`)
	if err != nil {
		return fmt.Errorf("migrate donations schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Donation) (domain.DonationID, error) {
	var id uint64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT next FROM donation_ids FOR UPDATE`,
		).Scan(&id); err != nil {
			return fmt.Errorf("allocate donation id: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE donation_ids SET next = next + 1`,
		); err != nil {
			return fmt.Errorf("advance donation id: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO donations (id, partner, amount, state, sponsor, beneficiary, approver_label, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, d.ImplementingPartner, d.Amount, int16(d.State), d.Sponsor.String(),
			d.Beneficiary.String(), d.ApproverLabel, d.CreatedAt, d.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert donation: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return domain.DonationID(id), nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.DonationID) (*models.Donation, error) {
	row := s.pool.QueryRow(ctx, selectDonation+` WHERE id = $1`, uint64(id))
	return scanDonation(row)
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.DonationID,
	validate func(*models.Donation) error,
	apply func(*models.Donation)) (*models.Donation, error) {

	var result *models.Donation
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, selectDonation+` WHERE id = $1 FOR UPDATE`, uint64(id))
		d, err := scanDonation(row)
		if err != nil {
			return err
		}

		if err := validate(d.Clone()); err != nil {
			return err
		}
		apply(d)

		var merchantLabel, merchantAccount *string
		var voucherValue *uint64
		var voucherUsed *bool
		if d.Voucher != nil {
			merchantLabel = &d.Voucher.MerchantLabel
			voucherValue = &d.Voucher.Value
			account := d.Voucher.MerchantAccount.String()
			merchantAccount = &account
			voucherUsed = &d.Voucher.Used
		}
		_, err = tx.Exec(ctx, `
			UPDATE donations
			SET state = $2, beneficiary = $3, approver_label = $4,
			    merchant_label = $5, voucher_value = $6, merchant_account = $7,
			    voucher_used = $8, updated_at = $9
			WHERE id = $1`,
			uint64(id), int16(d.State), d.Beneficiary.String(), d.ApproverLabel,
			merchantLabel, voucherValue, merchantAccount, voucherUsed, d.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update donation: %w", err)
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var next uint64
	if err := s.pool.QueryRow(ctx, `SELECT next FROM donation_ids`).Scan(&next); err != nil {
		return 0, fmt.Errorf("read donation id counter: %w", err)
	}
	return next, nil
}

const selectDonation = `
	SELECT id, partner, amount, state, sponsor, beneficiary, approver_label,
	       merchant_label, voucher_value, merchant_account, voucher_used,
	       created_at, updated_at
	FROM donations`

func scanDonation(row pgx.Row) (*models.Donation, error) {
	var d models.Donation
	var id uint64
	var state int16
	var sponsor, beneficiary string
	var merchantLabel, merchantAccount *string
	var voucherValue *uint64
	var voucherUsed *bool

	err := row.Scan(&id, &d.ImplementingPartner, &d.Amount, &state, &sponsor,
		&beneficiary, &d.ApproverLabel, &merchantLabel, &voucherValue,
		&merchantAccount, &voucherUsed, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan donation: %w", err)
	}

	d.ID = domain.DonationID(id)
	d.State = models.State(state)
	d.Sponsor = domain.AccountID(sponsor)
	d.Beneficiary = domain.AccountID(beneficiary)
	if d.State >= models.StateVoucherIssued {
		v := &models.Voucher{}
		if merchantLabel != nil {
			v.MerchantLabel = *merchantLabel
		}
		if voucherValue != nil {
			v.Value = *voucherValue
		}
		if merchantAccount != nil {
			v.MerchantAccount = domain.AccountID(*merchantAccount)
		}
		if voucherUsed != nil {
			v.Used = *voucherUsed
		}
		d.Voucher = v
	}
	return &d, nil
}
