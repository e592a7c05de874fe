// Package db provides SQLite storage for portal settings and guest registrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Guest statuses.
const (
	GuestActive  = "active"
	GuestExpired = "expired"
)

// DB represents the database connection.
type DB struct {
	conn *sql.DB
}

// Guest is one successful captive-portal authorization.
type Guest struct {
	ID              string
	Email           string
	MACAddress      string
	AccessPointMAC  string
	IPAddress       string
	Browser         string
	OperatingSystem string
	Mode            string // controller variant that granted access
	AuthorizedAt    time.Time
	ExpiresAt       time.Time
	Status          string // active, expired
}

// Open opens the SQLite database and creates tables if needed.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection.
	conn.SetMaxOpenConns(1)

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func createTables(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT '',
			updated_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS guests (
			id TEXT PRIMARY KEY,
			email TEXT DEFAULT '',
			mac_address TEXT NOT NULL,
			ap_mac TEXT DEFAULT '',
			ip_address TEXT DEFAULT '',
			browser TEXT DEFAULT '',
			operating_system TEXT DEFAULT '',
			mode TEXT DEFAULT '',
			authorized_at DATETIME,
			expires_at DATETIME,
			status TEXT DEFAULT 'active'
		);

		CREATE INDEX IF NOT EXISTS idx_guests_status ON guests(status);
		CREATE INDEX IF NOT EXISTS idx_guests_mac ON guests(mac_address);
		CREATE INDEX IF NOT EXISTS idx_guests_authorized ON guests(authorized_at);
	`)
	return err
}

// CreateGuest inserts a new guest registration.
func (db *DB) CreateGuest(ctx context.Context, g *Guest) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO guests (id, email, mac_address, ap_mac, ip_address, browser, operating_system, mode, authorized_at, expires_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.Email, g.MACAddress, g.AccessPointMAC, g.IPAddress, g.Browser, g.OperatingSystem, g.Mode,
		g.AuthorizedAt.UTC(), g.ExpiresAt.UTC(), g.Status)
	if err != nil {
		return fmt.Errorf("failed to insert guest: %w", err)
	}
	return nil
}

// ListGuests returns guests newest first, optionally filtered by status.
func (db *DB) ListGuests(ctx context.Context, status string) ([]*Guest, error) {
	query := `
		SELECT id, email, mac_address, ap_mac, ip_address, browser, operating_system, mode, authorized_at, expires_at, status
		FROM guests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY authorized_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	var guests []*Guest
	for rows.Next() {
		g := &Guest{}
		var email, apMAC, ipAddr, browser, osName, mode sql.NullString
		if err := rows.Scan(&g.ID, &email, &g.MACAddress, &apMAC, &ipAddr, &browser, &osName, &mode,
			&g.AuthorizedAt, &g.ExpiresAt, &g.Status); err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		g.Email = email.String
		g.AccessPointMAC = apMAC.String
		g.IPAddress = ipAddr.String
		g.Browser = browser.String
		g.OperatingSystem = osName.String
		g.Mode = mode.String
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

// ExpireGuests marks active guests whose access ended before now as expired.
func (db *DB) ExpireGuests(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE guests SET status = 'expired'
		WHERE status = 'active' AND expires_at <= ?
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire guests: %w", err)
	}
	return result.RowsAffected()
}

// GetStats returns guest counters.
func (db *DB) GetStats(ctx context.Context) (total int, active int, err error) {
	row := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM guests`)
	if err = row.Scan(&total); err != nil {
		return
	}

	row = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM guests WHERE status = 'active'`)
	err = row.Scan(&active)
	return
}
