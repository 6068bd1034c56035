// Package contacts persists name-to-room mappings and their call history.
// Names are matched case-insensitively; demo contacts are seeded at startup
// and protected from removal.
package contacts

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kiko-beam/beamlink/internal/models"
)

var (
	ErrEmptyName   = errors.New("contact name required")
	ErrNotFound    = errors.New("contact not found")
	ErrDemoContact = errors.New("demo contacts cannot be removed")
	ErrExists      = errors.New("contact already exists")
)

// DemoContactName is seeded on open so a fresh install has someone to call.
const DemoContactName = "Beam Demo"

const demoRoomID = "beam-demo"

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection with a busy timeout keeps concurrent readers and
	// writers from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedDemo(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS contacts (
		key TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		created INTEGER NOT NULL,
		last_contact INTEGER,
		contact_type TEXT NOT NULL,
		signature TEXT NOT NULL,
		history TEXT NOT NULL DEFAULT '[]',
		last_accessed INTEGER
	);`)
	return err
}

func (s *Store) seedDemo() error {
	_, err := s.Get(DemoContactName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.Add(DemoContactName, demoRoomID, models.ContactDemo)
	return err
}

// Add creates a contact. The lowercased name is the key, so at most one
// contact exists per normalized name.
func (s *Store) Add(name, roomID string, typ models.ContactType) (models.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Contact{}, ErrEmptyName
	}
	if roomID == "" {
		roomID = GenerateRoomID()
	}
	if typ == "" {
		typ = models.ContactStandard
	}

	c := models.Contact{
		ID:          roomID,
		Name:        name,
		Created:     time.Now(),
		ContactType: typ,
		Signature:   generateSignature(),
	}

	_, err := s.db.Exec(
		`INSERT INTO contacts(key, id, name, created, contact_type, signature, history) VALUES(?,?,?,?,?,?,'[]')`,
		strings.ToLower(name), c.ID, c.Name, c.Created.UnixMilli(), string(c.ContactType), c.Signature,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return models.Contact{}, ErrExists
		}
		return models.Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// Get looks a contact up by (case-insensitive) name and bumps its
// last-accessed time.
func (s *Store) Get(name string) (models.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Contact{}, ErrEmptyName
	}
	row := s.db.QueryRow(
		`SELECT id, name, created, last_contact, contact_type, signature, history FROM contacts WHERE key = ?`,
		strings.ToLower(name),
	)
	c, err := scanContact(row)
	if err != nil {
		return models.Contact{}, err
	}
	s.touch(name)
	return c, nil
}

// touch bumps a contact's last-accessed time. Lookups call it; failure is
// not worth surfacing to the caller.
func (s *Store) touch(name string) {
	s.db.Exec(`UPDATE contacts SET last_accessed = ? WHERE key = ?`,
		time.Now().UnixMilli(), strings.ToLower(strings.TrimSpace(name)))
}

// Remove deletes a contact unless it is a demo contact.
func (s *Store) Remove(name string) error {
	c, err := s.Get(name)
	if err != nil {
		return err
	}
	if c.ContactType == models.ContactDemo {
		return ErrDemoContact
	}
	_, err = s.db.Exec(`DELETE FROM contacts WHERE key = ?`, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// List returns all contacts: demo contacts first, then by creation order.
func (s *Store) List() ([]models.Contact, error) {
	rows, err := s.db.Query(
		`SELECT id, name, created, last_contact, contact_type, signature, history FROM contacts
		 ORDER BY CASE contact_type WHEN 'demo' THEN 0 ELSE 1 END, created ASC, rowid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendHistory records a call event, capping history at the most recent
// entries and bumping the contact's last-contacted time.
func (s *Store) AppendHistory(name string, action models.HistoryAction, duration float64) error {
	c, err := s.Get(name)
	if err != nil {
		return err
	}

	c.History = append(c.History, models.HistoryEntry{
		Action:    action,
		Timestamp: time.Now(),
		Duration:  duration,
	})
	if len(c.History) > models.MaxHistoryEntries {
		c.History = c.History[len(c.History)-models.MaxHistoryEntries:]
	}

	raw, err := json.Marshal(c.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE contacts SET history = ?, last_contact = ? WHERE key = ?`,
		string(raw), time.Now().UnixMilli(), strings.ToLower(strings.TrimSpace(name)),
	)
	if err != nil {
		return fmt.Errorf("update history: %w", err)
	}
	return nil
}

// Stats summarizes a contact's call history.
func (s *Store) Stats(name string) (models.ContactStats, error) {
	c, err := s.Get(name)
	if err != nil {
		return models.ContactStats{}, err
	}

	var stats models.ContactStats
	stats.LastCall = c.LastContact
	var total float64
	var counted int
	for _, h := range c.History {
		switch h.Action {
		case models.CallStarted:
			stats.TotalCalls++
		case models.CallEnded:
			stats.SuccessfulCalls++
			if h.Duration > 0 {
				total += h.Duration
				counted++
			}
		case models.CallFailed:
			stats.FailedCalls++
		}
	}
	if counted > 0 {
		stats.AverageDuration = total / float64(counted)
	}
	return stats, nil
}

// Cleanup removes non-demo contacts created before the cutoff that have
// neither been contacted nor looked up since. Returns the number removed.
func (s *Store) Cleanup(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.Exec(
		`DELETE FROM contacts WHERE contact_type != 'demo'
		 AND created < ?
		 AND (last_contact IS NULL OR last_contact < ?)
		 AND (last_accessed IS NULL OR last_accessed < ?)`,
		cutoff, cutoff, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (models.Contact, error) {
	var (
		c           models.Contact
		created     int64
		lastContact sql.NullInt64
		typ         string
		history     string
	)
	if err := row.Scan(&c.ID, &c.Name, &created, &lastContact, &typ, &c.Signature, &history); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Contact{}, ErrNotFound
		}
		return models.Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	c.Created = time.UnixMilli(created)
	if lastContact.Valid {
		c.LastContact = time.UnixMilli(lastContact.Int64)
	}
	c.ContactType = models.ContactType(typ)
	if err := json.Unmarshal([]byte(history), &c.History); err != nil {
		return models.Contact{}, fmt.Errorf("parse history: %w", err)
	}
	return c, nil
}
