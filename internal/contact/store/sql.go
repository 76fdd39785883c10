package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/sentinel"
	txcontext "reconcile/pkg/platform/tx"
)

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	name string
	// dollar switches ? placeholders to $n.
	dollar bool
	// lockSQL takes a transaction-scoped lock on one key, or "" when the
	// backend already serializes writers.
	lockSQL string
}

var (
	Postgres = Dialect{
		name:    "postgres",
		dollar:  true,
		lockSQL: "SELECT pg_advisory_xact_lock(hashtextextended(?, 0))",
	}
	// SQLite runs on a single connection, so transactions never interleave.
	SQLite = Dialect{name: "sqlite"}
)

func (d Dialect) Name() string { return d.name }

// rebind rewrites ? placeholders for the dialect.
func (d Dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// SQLStore persists contacts through database/sql. Methods run on the
// transaction carried by ctx (see pkg/platform/tx) when there is one.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostgres creates a store for a pgx or lib/pq backed *sql.DB.
func NewPostgres(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: Postgres}
}

// NewSQLite creates a store for a modernc.org/sqlite backed *sql.DB.
func NewSQLite(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: SQLite}
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

func (s *SQLStore) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	var (
		conds []string
		args  []any
	)
	if email != nil {
		conds = append(conds, "email = ?")
		args = append(args, *email)
	}
	if phone != nil {
		conds = append(conds, "phone_number = ?")
		args = append(args, *phone)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE (` + strings.Join(conds, " OR ") + `) AND deleted_at IS NULL
		ORDER BY id`
	return s.queryContacts(ctx, "find contacts by email or phone", query, args...)
}

func (s *SQLStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	query := s.dialect.rebind(`SELECT ` + contactColumns + ` FROM contacts WHERE id = ? AND deleted_at IS NULL`)
	c, err := scanContact(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find contact %d: %w", id, ClassifyError(err))
	}
	return c, nil
}

func (s *SQLStore) FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE linked_id = ? AND deleted_at IS NULL
		ORDER BY id`
	return s.queryContacts(ctx, "find linked contacts", query, primaryID)
}

func (s *SQLStore) Insert(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	stored := c.Clone()
	stored.CreatedAt = dbTime(c.CreatedAt)
	stored.UpdatedAt = dbTime(c.UpdatedAt)

	query := s.dialect.rebind(`
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.execer(ctx).QueryRowContext(ctx, query,
		nullString(stored.Email),
		nullString(stored.PhoneNumber),
		nullInt64(stored.LinkedID),
		string(stored.LinkPrecedence),
		stored.CreatedAt,
		stored.UpdatedAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", ClassifyError(err))
	}
	return stored, nil
}

func (s *SQLStore) UpdatePrecedenceAndLink(ctx context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64, now time.Time) error {
	query := s.dialect.rebind(`
		UPDATE contacts SET link_precedence = ?, linked_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`)
	res, err := s.execer(ctx).ExecContext(ctx, query, string(precedence), nullInt64(linkedID), dbTime(now), id)
	if err != nil {
		return fmt.Errorf("update contact %d: %w", id, ClassifyError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact %d: %w", id, ClassifyError(err))
	}
	if n == 0 {
		return fmt.Errorf("update contact %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) RelinkSecondaries(ctx context.Context, from, to int64, now time.Time) ([]int64, error) {
	query := s.dialect.rebind(`
		UPDATE contacts SET linked_id = ?, updated_at = ?
		WHERE linked_id = ? AND deleted_at IS NULL
		RETURNING id`)
	rows, err := s.execer(ctx).QueryContext(ctx, query, to, dbTime(now), from)
	if err != nil {
		return nil, fmt.Errorf("relink contacts of %d: %w", from, ClassifyError(err))
	}
	defer rows.Close()

	var moved []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan relinked id: %w", ClassifyError(err))
		}
		moved = append(moved, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relink contacts of %d: %w", from, ClassifyError(err))
	}
	slices.Sort(moved)
	return moved, nil
}

// LockIdentityKeys takes one advisory lock per key. Locks are released at
// commit or rollback, so it does nothing outside a transaction.
func (s *SQLStore) LockIdentityKeys(ctx context.Context, keys []string) error {
	if s.dialect.lockSQL == "" {
		return nil
	}
	tx, ok := txcontext.From(ctx)
	if !ok {
		return nil
	}
	query := s.dialect.rebind(s.dialect.lockSQL)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, query, key); err != nil {
			return fmt.Errorf("lock identity key: %w", ClassifyError(err))
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.name, ClassifyError(err))
	}
	return nil
}

// SoftDelete marks a contact deleted. Deleted rows are invisible to every query.
func (s *SQLStore) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	query := s.dialect.rebind(`UPDATE contacts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := s.execer(ctx).ExecContext(ctx, query, dbTime(now), dbTime(now), id)
	if err != nil {
		return fmt.Errorf("delete contact %d: %w", id, ClassifyError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete contact %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) queryContacts(ctx context.Context, op, query string, args ...any) ([]*models.Contact, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ClassifyError(err))
	}
	defer rows.Close()

	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, ClassifyError(err))
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ClassifyError(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c          models.Contact
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		createdAt  timeValue
		updatedAt  timeValue
		deletedAt  timeValue
	)
	if err := row.Scan(&c.ID, &email, &phone, &linkedID, &precedence, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if email.Valid {
		c.Email = &email.String
	}
	if phone.Valid {
		c.PhoneNumber = &phone.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	c.LinkPrecedence = models.LinkPrecedence(precedence)
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	return &c, nil
}
