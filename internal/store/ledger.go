package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
)

// LedgerStore persists the custody ledger in SQLite. It implements ledger.Store.
type LedgerStore struct {
	db *sqlx.DB
}

var _ ledger.Store = (*LedgerStore)(nil)

// NewLedgerStore returns a ledger store backed by db.
func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type productRow struct {
	ID               int64  `db:"id"`
	Name             string `db:"name"`
	BatchNumber      string `db:"batch_number"`
	Manufacturer     string `db:"manufacturer"`
	ManufacturerName string `db:"manufacturer_name"`
	Quantity         int64  `db:"quantity"`
	MfgDate          string `db:"mfg_date"`
	ExpiryDate       string `db:"expiry_date"`
	Category         string `db:"category"`
	CurrentHolder    string `db:"current_holder"`
	IsAuthentic      bool   `db:"is_authentic"`
	CreatedAt        string `db:"created_at"`
}

type transferRow struct {
	ProductID int64  `db:"product_id"`
	From      string `db:"from_account"`
	To        string `db:"to_account"`
	Timestamp string `db:"timestamp"`
	Location  string `db:"location"`
	Verified  bool   `db:"verified"`
}

type authorizationRow struct {
	Account    string `db:"account"`
	Authorized bool   `db:"authorized"`
}

// LoadState reads the whole ledger. It returns nil if no owner has been recorded yet.
func (s *LedgerStore) LoadState(ctx context.Context) (*ledger.State, error) {
	owner, err := getSetting(ctx, s.db, settingLedgerOwner)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, nil
	}

	state := &ledger.State{
		Owner:          model.Account(owner),
		Authorizations: make(map[model.Account]bool),
	}

	next, err := getSetting(ctx, s.db, settingNextProductID)
	if err != nil {
		return nil, err
	}
	if next != "" {
		state.NextProductID, err = strconv.ParseInt(next, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", settingNextProductID, err)
		}
	}

	var auths []authorizationRow
	if err := s.db.SelectContext(ctx, &auths, `SELECT account, authorized FROM manufacturers`); err != nil {
		return nil, fmt.Errorf("loading manufacturers: %w", err)
	}
	for _, a := range auths {
		state.Authorizations[model.Account(a.Account)] = a.Authorized
	}

	var products []productRow
	err = s.db.SelectContext(ctx, &products,
		`SELECT id, name, batch_number, manufacturer, manufacturer_name, quantity, mfg_date,
		        expiry_date, category, current_holder, is_authentic, created_at
		 FROM products ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}
	for _, row := range products {
		p, err := row.product()
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", row.ID, err)
		}
		state.Products = append(state.Products, p)
	}

	var transfers []transferRow
	err = s.db.SelectContext(ctx, &transfers,
		`SELECT product_id, from_account, to_account, timestamp, location, verified
		 FROM transfers ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading transfers: %w", err)
	}
	for _, row := range transfers {
		ts, err := parseTime(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("transfer of product %d: %w", row.ProductID, err)
		}
		state.Transfers = append(state.Transfers, model.Transfer{
			ProductID: row.ProductID,
			From:      model.Account(row.From),
			To:        model.Account(row.To),
			Timestamp: ts,
			Location:  row.Location,
			Verified:  row.Verified,
		})
	}

	return state, nil
}

// InitOwner records the ledger owner, resets the id counter and authorizes the owner.
func (s *LedgerStore) InitOwner(ctx context.Context, owner model.Account) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := setSetting(ctx, tx, settingLedgerOwner, owner.String()); err != nil {
			return err
		}
		if err := setSetting(ctx, tx, settingNextProductID, "1"); err != nil {
			return err
		}
		return setAuthorization(ctx, tx, owner, true)
	})
}

// InsertProduct stores p and advances the id counter past it.
func (s *LedgerStore) InsertProduct(ctx context.Context, p model.Product) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, batch_number, manufacturer, manufacturer_name, quantity,
			                       mfg_date, expiry_date, category, current_holder, is_authentic, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.BatchNumber, p.Manufacturer.String(), p.ManufacturerName, p.Quantity,
			formatTime(p.MfgDate), formatTime(p.ExpiryDate), p.Category, p.CurrentHolder.String(),
			p.IsAuthentic, formatTime(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting product: %w", err)
		}
		return setSetting(ctx, tx, settingNextProductID, strconv.FormatInt(p.ID+1, 10))
	})
}

// RecordTransfer moves the product to t.To and appends t to its history. The
// update only applies if t.From still holds the product.
func (s *LedgerStore) RecordTransfer(ctx context.Context, t model.Transfer) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE products SET current_holder = ? WHERE id = ? AND current_holder = ?`,
			t.To.String(), t.ProductID, t.From.String(),
		)
		if err != nil {
			return fmt.Errorf("updating holder: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking holder update: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("product %d is not held by %s", t.ProductID, t.From)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO transfers (product_id, from_account, to_account, timestamp, location, verified)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.ProductID, t.From.String(), t.To.String(), formatTime(t.Timestamp), t.Location, t.Verified,
		)
		if err != nil {
			return fmt.Errorf("recording transfer: %w", err)
		}
		return nil
	})
}

// SetAuthorization writes one manufacturer flag.
func (s *LedgerStore) SetAuthorization(ctx context.Context, account model.Account, authorized bool) error {
	return setAuthorization(ctx, s.db, account, authorized)
}

func setAuthorization(ctx context.Context, e sqlx.ExecerContext, account model.Account, authorized bool) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO manufacturers (account, authorized) VALUES (?, ?)
		 ON CONFLICT (account) DO UPDATE SET authorized = excluded.authorized`,
		account.String(), authorized,
	)
	if err != nil {
		return fmt.Errorf("setting authorization: %w", err)
	}
	return nil
}

func (s *LedgerStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (r productRow) product() (model.Product, error) {
	p := model.Product{
		ID:               r.ID,
		Name:             r.Name,
		BatchNumber:      r.BatchNumber,
		Manufacturer:     model.Account(r.Manufacturer),
		ManufacturerName: r.ManufacturerName,
		Quantity:         uint32(r.Quantity),
		Category:         r.Category,
		CurrentHolder:    model.Account(r.CurrentHolder),
		IsAuthentic:      r.IsAuthentic,
	}
	var err error
	if p.MfgDate, err = parseTime(r.MfgDate); err != nil {
		return p, err
	}
	if p.ExpiryDate, err = parseTime(r.ExpiryDate); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return p, err
	}
	return p, nil
}

// unixTimePrefix marks times outside years 0-9999, which RFC 3339 cannot
// express. They are stored as "unix:<seconds>.<nanoseconds>".
const unixTimePrefix = "unix:"

func formatTime(t time.Time) string {
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return fmt.Sprintf("%s%d.%09d", unixTimePrefix, t.Unix(), t.Nanosecond())
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if rest, ok := strings.CutPrefix(s, unixTimePrefix); ok {
		secs, nanos, _ := strings.Cut(rest, ".")
		sec, err := strconv.ParseInt(secs, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
		}
		nsec, err := strconv.ParseInt(nanos, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
		}
		return time.Unix(sec, nsec).UTC(), nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
