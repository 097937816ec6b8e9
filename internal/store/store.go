package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the pure-Go driver as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/dshills/tandem/internal/review"
)

// timeLayout is fixed width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned by Get when no verdict has the given ID.
var ErrNotFound = errors.New("verdict not found")

// Summary is one row of the history listing.
type Summary struct {
	ID        string           `json:"id"`
	Outcome   review.Outcome   `json:"outcome"`
	Rounds    int              `json:"rounds"`
	Kind      review.InputKind `json:"kind"`
	Source    string           `json:"source"`
	Senior    string           `json:"senior"`
	Junior    string           `json:"junior"`
	Findings  int              `json:"findings"`
	Highest   review.Severity  `json:"highestSeverity,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Store is the verdict history database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path, creating the parent
// directory when needed, and applies pending migrations. Use ":memory:" for
// a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %q: %w", path, err)
	}
	if err := migrateUp(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores v, replacing any earlier verdict with the same ID.
func (s *Store) Save(ctx context.Context, v *review.Verdict) error {
	if v == nil || v.ID == "" {
		return errors.New("store: verdict has no id")
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode verdict: %w", err)
	}

	created := v.StartedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO verdicts
			(id, outcome, rounds, input_kind, source, senior, junior, findings, highest, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		string(v.Outcome),
		v.Rounds,
		string(v.Input.Kind),
		v.Input.Source.Label(),
		v.Senior.String(),
		v.Junior.String(),
		len(v.Findings),
		string(v.Summary.HighestSeverity),
		created.UTC().Format(timeLayout),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", v.ID, err)
	}
	return nil
}

// List returns up to limit summaries, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outcome, rounds, input_kind, source, senior, junior, findings, highest, created_at
		FROM verdicts
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum     Summary
			created string
		)
		if err := rows.Scan(&sum.ID, &sum.Outcome, &sum.Rounds, &sum.Kind, &sum.Source,
			&sum.Senior, &sum.Junior, &sum.Findings, &sum.Highest, &created); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		sum.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("store: bad timestamp for %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Get returns the full verdict with the given ID. A unique ID prefix is also
// accepted.
func (s *Store) Get(ctx context.Context, id string) (*review.Verdict, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM verdicts WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		body, err = s.byPrefix(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	var v review.Verdict
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) byPrefix(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM verdicts WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeLike(prefix)+"%")
	if err != nil {
		return "", fmt.Errorf("store: get %s: %w", prefix, err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return "", fmt.Errorf("store: scan: %w", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("store: get %s: %w", prefix, err)
	}

	switch len(bodies) {
	case 0:
		return "", fmt.Errorf("%s: %w", prefix, ErrNotFound)
	case 1:
		return bodies[0], nil
	default:
		return "", fmt.Errorf("store: id prefix %q is ambiguous", prefix)
	}
}

func escapeLike(s string) string {
	var out []rune
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
