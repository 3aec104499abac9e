package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/models"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// fixed width so created_at sorts lexically
const runTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Database provides methods for storing and retrieving pipeline runs
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		search_terms TEXT NOT NULL,
		query TEXT NOT NULL,
		total_posts INTEGER NOT NULL,
		global_themes TEXT NOT NULL,
		sentiment_themes TEXT NOT NULL,
		statistics TEXT NOT NULL,
		classification TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posts (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT,
		text TEXT NOT NULL,
		created_at TEXT,
		author_handle TEXT,
		author_followers INTEGER NOT NULL,
		author_avatar TEXT,
		like_count INTEGER NOT NULL,
		reply_count INTEGER NOT NULL,
		repost_count INTEGER NOT NULL,
		quote_count INTEGER NOT NULL,
		bookmark_count INTEGER NOT NULL,
		view_count INTEGER NOT NULL,
		source TEXT,
		sentiment TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_views ON posts(run_id, view_count DESC);
	`

	_, err := d.db.Exec(query)
	return err
}

// SaveRun stores a run and its posts in one transaction
func (d *Database) SaveRun(run *models.RunResult) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	terms := run.Query.SearchTerms
	if terms == nil {
		terms = []string{}
	}

	blobs := make([]string, 0, 6)
	for _, v := range []any{terms, run.Query, run.GlobalThemes, run.SentimentThemes, run.Statistics, run.Classification} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode run: %w", err)
		}
		blobs = append(blobs, string(b))
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT OR REPLACE INTO runs (
		id, created_at, search_terms, query, total_posts,
		global_themes, sentiment_themes, statistics, classification
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(runTimeLayout), blobs[0], blobs[1], len(run.Posts),
		blobs[2], blobs[3], blobs[4], blobs[5],
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM posts WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear posts: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO posts (
		run_id, position, url, text, created_at, author_handle, author_followers,
		author_avatar, like_count, reply_count, repost_count, quote_count,
		bookmark_count, view_count, source, sentiment
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare post insert: %w", err)
	}
	defer stmt.Close()

	for i, post := range run.Posts {
		var createdAt any
		if post.CreatedAt != nil {
			createdAt = post.CreatedAt.UTC().Format(time.RFC3339)
		}

		_, err := stmt.Exec(
			run.ID, i, post.URL, post.Text, createdAt, post.AuthorHandle, post.AuthorFollowers,
			post.AuthorAvatar, post.LikeCount, post.ReplyCount, post.RepostCount, post.QuoteCount,
			post.BookmarkCount, post.ViewCount, post.Source, string(post.Sentiment),
		)
		if err != nil {
			return fmt.Errorf("failed to save post %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"posts":  len(run.Posts),
	}).Debug("Run saved")
	return nil
}

// GetRun loads a run with all of its posts
func (d *Database) GetRun(id string) (*models.RunResult, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var (
		run                                                       models.RunResult
		createdAt, query, global, perSentiment, stats, classified string
	)

	err := d.db.QueryRow(`
	SELECT id, created_at, query, global_themes, sentiment_themes, statistics, classification
	FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &createdAt, &query, &global, &perSentiment, &stats, &classified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.CreatedAt, _ = time.Parse(runTimeLayout, createdAt)

	for _, pair := range []struct {
		blob   string
		target any
	}{
		{query, &run.Query},
		{global, &run.GlobalThemes},
		{perSentiment, &run.SentimentThemes},
		{stats, &run.Statistics},
		{classified, &run.Classification},
	} {
		if err := json.Unmarshal([]byte(pair.blob), pair.target); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
		}
	}

	posts, err := d.queryPosts(`WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	run.Posts = posts

	return &run, nil
}

// GetTopPostsByViews returns the top N posts of a run by view count
func (d *Database) GetTopPostsByViews(runID string, limit int) ([]models.Post, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.queryPosts(`WHERE run_id = ? ORDER BY view_count DESC, position LIMIT ?`, runID, limit)
}

// ListRuns returns the most recent runs, newest first
func (d *Database) ListRuns(limit int) ([]models.RunSummary, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.Query(`
	SELECT id, created_at, search_terms, total_posts
	FROM runs
	ORDER BY created_at DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RunSummary, 0, limit)
	for rows.Next() {
		var summary models.RunSummary
		var createdAt, terms string

		if err := rows.Scan(&summary.ID, &createdAt, &terms, &summary.TotalPosts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		summary.CreatedAt, _ = time.Parse(runTimeLayout, createdAt)
		if err := json.Unmarshal([]byte(terms), &summary.SearchTerms); err != nil {
			return nil, fmt.Errorf("failed to decode search terms: %w", err)
		}
		runs = append(runs, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// queryPosts runs a posts query; callers hold the read lock
func (d *Database) queryPosts(where string, args ...any) ([]models.Post, error) {
	rows, err := d.db.Query(`
	SELECT url, text, created_at, author_handle, author_followers, author_avatar,
		like_count, reply_count, repost_count, quote_count, bookmark_count,
		view_count, source, sentiment
	FROM posts `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		var post models.Post
		var createdAt sql.NullString
		var sentiment string

		err := rows.Scan(
			&post.URL, &post.Text, &createdAt, &post.AuthorHandle, &post.AuthorFollowers,
			&post.AuthorAvatar, &post.LikeCount, &post.ReplyCount, &post.RepostCount,
			&post.QuoteCount, &post.BookmarkCount, &post.ViewCount, &post.Source, &sentiment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		if createdAt.Valid {
			if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				post.CreatedAt = &t
			}
		}
		post.Sentiment = models.SentimentLabel(sentiment)
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}
