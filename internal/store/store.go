// Package store provides SQLite persistence for reelfeed: a local cache
// of post metadata and a record of the user's stake participations.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/reelfeed/internal/bet"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/sign"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		canister_id TEXT NOT NULL,
		post_id INTEGER NOT NULL,
		video_uid TEXT NOT NULL,
		poster_principal TEXT,
		description TEXT,
		views INTEGER DEFAULT 0,
		likes INTEGER DEFAULT 0,
		nsfw INTEGER DEFAULT 0,
		nsfw_probability REAL DEFAULT 0,
		created_at DATETIME NOT NULL,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (canister_id, post_id)
	);

	CREATE INDEX IF NOT EXISTS idx_posts_fetched ON posts(fetched_at DESC);

	CREATE TABLE IF NOT EXISTS participations (
		principal TEXT NOT NULL,
		canister_id TEXT NOT NULL,
		post_id INTEGER NOT NULL,
		direction INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		placed_at DATETIME NOT NULL,
		won INTEGER,
		payout INTEGER,
		updated_balance INTEGER,
		PRIMARY KEY (principal, canister_id, post_id)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SavePosts caches post metadata, returning the count of new rows.
// A post's metadata is write-once: re-saving an existing identity is
// silently ignored via INSERT OR IGNORE. Counters are refreshed
// separately with RefreshCounters.
// Thread-safe: acquires write lock.
func (s *Store) SavePosts(posts []post.Details) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(posts) == 0 {
		return 0, nil
	}

	stmt, err := s.db.Prepare(`
		INSERT OR IGNORE INTO posts (
			canister_id, post_id, video_uid, poster_principal, description,
			views, likes, nsfw, nsfw_probability, created_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	newCount := 0
	for _, p := range posts {
		result, err := stmt.Exec(
			p.CanisterID,
			p.PostID,
			p.VideoUID,
			p.PosterPrincipal,
			p.Description,
			p.Views,
			p.Likes,
			boolToInt(p.NSFW),
			p.NSFWProbability,
			p.CreatedAt,
			now,
		)
		if err != nil {
			return newCount, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}

	return newCount, nil
}

// RefreshCounters updates the view and like counts for a cached post.
// Last write wins; counters are display data, not correctness-critical.
// Thread-safe: acquires write lock.
func (s *Store) RefreshCounters(id post.Identity, views, likes uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE posts SET views = ?, likes = ? WHERE canister_id = ? AND post_id = ?",
		views, likes, id.CanisterID, id.PostID,
	)
	return err
}

// GetPost retrieves a cached post by identity. Returns nil (no error)
// when the post is not cached.
// Thread-safe: acquires read lock.
func (s *Store) GetPost(id post.Identity) (*post.Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts, err := s.queryPosts(`
		SELECT canister_id, post_id, video_uid, poster_principal, description,
			views, likes, nsfw, nsfw_probability, created_at
		FROM posts
		WHERE canister_id = ? AND post_id = ?
	`, id.CanisterID, id.PostID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

// RecentPosts retrieves the most recently cached posts, newest first.
// Thread-safe: acquires read lock.
func (s *Store) RecentPosts(limit int) ([]post.Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPosts(`
		SELECT canister_id, post_id, video_uid, poster_principal, description,
			views, likes, nsfw, nsfw_probability, created_at
		FROM posts
		ORDER BY fetched_at DESC, post_id DESC
		LIMIT ?
	`, limit)
}

// PostCount returns the number of cached posts.
// Thread-safe: acquires read lock.
func (s *Store) PostCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count)
	return count, err
}

// SaveParticipation records or updates the user's stake on a post. A
// pending record gains its outcome when settlement resolves.
// Thread-safe: acquires write lock.
func (s *Store) SaveParticipation(principal string, id post.Identity, p *bet.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var won, payout, balance any
	if p.Outcome != nil {
		won = boolToInt(p.Outcome.Won)
		payout = p.Outcome.Amount
		balance = p.Outcome.UpdatedBalance
	}

	_, err := s.db.Exec(`
		INSERT INTO participations (
			principal, canister_id, post_id, direction, amount, placed_at,
			won, payout, updated_balance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(principal, canister_id, post_id) DO UPDATE SET
			won = excluded.won,
			payout = excluded.payout,
			updated_balance = excluded.updated_balance
	`, principal, id.CanisterID, id.PostID, uint8(p.Direction), p.Amount, p.PlacedAt,
		won, payout, balance)
	return err
}

// GetParticipation retrieves the user's stake on a post. Returns nil
// (no error) when the user has no recorded stake.
// Thread-safe: acquires read lock.
func (s *Store) GetParticipation(principal string, id post.Identity) (*bet.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         bet.Participation
		direction uint8
		won       sql.NullInt64
		payout    sql.NullInt64
		balance   sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT direction, amount, placed_at, won, payout, updated_balance
		FROM participations
		WHERE principal = ? AND canister_id = ? AND post_id = ?
	`, principal, id.CanisterID, id.PostID).Scan(
		&direction, &p.Amount, &p.PlacedAt, &won, &payout, &balance,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Direction = sign.Direction(direction)
	if won.Valid {
		p.Outcome = &bet.Outcome{
			Won:            won.Int64 != 0,
			Amount:         uint64(payout.Int64),
			UpdatedBalance: uint64(balance.Int64),
		}
	}
	return &p, nil
}

// queryPosts is a helper that executes a query and scans results into
// Details. Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryPosts(query string, args ...any) ([]post.Details, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []post.Details
	for rows.Next() {
		var p post.Details
		var nsfwInt int
		err := rows.Scan(
			&p.CanisterID,
			&p.PostID,
			&p.VideoUID,
			&p.PosterPrincipal,
			&p.Description,
			&p.Views,
			&p.Likes,
			&nsfwInt,
			&p.NSFWProbability,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		p.NSFW = nsfwInt != 0
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return posts, nil
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
