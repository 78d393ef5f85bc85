// Package db persists prediction requests and training runs in SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the database handle. All methods are safe for concurrent use;
// database/sql serializes access through its pool.
type Store struct {
	db *sql.DB
}

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	SepalLength float64   `json:"sepal_length"`
	SepalWidth  float64   `json:"sepal_width"`
	PetalLength float64   `json:"petal_length"`
	PetalWidth  float64   `json:"petal_width"`
	Class       int       `json:"prediction"`
	Species     string    `json:"species"`
	Confidence  float64   `json:"confidence"`
	LatencyMS   float64   `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// TrainingRecord is one completed training run.
type TrainingRecord struct {
	ID         int64     `json:"id"`
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	Seed       int64     `json:"seed"`
	NumTrees   int       `json:"num_trees"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT,
    sepal_length REAL NOT NULL,
    sepal_width REAL NOT NULL,
    petal_length REAL NOT NULL,
    petal_width REAL NOT NULL,
    predicted_class INTEGER NOT NULL,
    species TEXT NOT NULL,
    confidence REAL NOT NULL,
    latency_ms REAL DEFAULT 0,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_name VARCHAR(50),
    accuracy REAL,
    precision REAL,
    recall REAL,
    seed INTEGER,
    num_trees INTEGER,
    trained_at DATETIME,
    data_points INTEGER
);
`

// Open creates the database file (and its directory) if needed and prepares
// the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %v", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(time.Hour)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to prepare schema: %v", err)
	}
	return &Store{db: database}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SavePrediction appends one prediction row.
func (s *Store) SavePrediction(rec *PredictionRecord) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
        INSERT INTO predictions (
            request_id, sepal_length, sepal_width, petal_length, petal_width,
            predicted_class, species, confidence, latency_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.SepalLength, rec.SepalWidth, rec.PetalLength, rec.PetalWidth,
		rec.Class, rec.Species, rec.Confidence, rec.LatencyMS, rec.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.Query(`
        SELECT id, request_id, sepal_length, sepal_width, petal_length, petal_width,
               predicted_class, species, confidence, latency_ms, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var rec PredictionRecord
		err := rows.Scan(&rec.ID, &rec.RequestID, &rec.SepalLength, &rec.SepalWidth,
			&rec.PetalLength, &rec.PetalWidth, &rec.Class, &rec.Species,
			&rec.Confidence, &rec.LatencyMS, &rec.CreatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveTrainingRun appends one training_log row.
func (s *Store) SaveTrainingRun(rec *TrainingRecord) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	if rec.TrainedAt.IsZero() {
		rec.TrainedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
        INSERT INTO training_log (
            model_name, accuracy, precision, recall, seed, num_trees, trained_at, data_points
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ModelName, rec.Accuracy, rec.Precision, rec.Recall,
		rec.Seed, rec.NumTrees, rec.TrainedAt, rec.DataPoints)
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// TrainingHistory returns up to limit training runs, newest first.
func (s *Store) TrainingHistory(limit int) ([]TrainingRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.Query(`
        SELECT id, model_name, accuracy, precision, recall, seed, num_trees, trained_at, data_points
        FROM training_log
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]TrainingRecord, 0, limit)
	for rows.Next() {
		var rec TrainingRecord
		err := rows.Scan(&rec.ID, &rec.ModelName, &rec.Accuracy, &rec.Precision,
			&rec.Recall, &rec.Seed, &rec.NumTrees, &rec.TrainedAt, &rec.DataPoints)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
