// Package versionstore persists immutable transcript versions: each
// save is a new, numbered snapshot, and at most one version per
// meeting may be marked authoritative at a time.
package versionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hashing-labs/meetscribe/pkg/alignment"
)

// Source names where a transcript version came from.
type Source string

const (
	SourceLive       Source = "live"
	SourceDiarized   Source = "diarized"
	SourceManualEdit Source = "manual_edit"
)

// Segment is one entry of a version's content array.
type Segment struct {
	Text              string          `json:"text"`
	AudioStartTime    float64         `json:"audio_start_time"`
	AudioEndTime      float64         `json:"audio_end_time"`
	Speaker           string          `json:"speaker,omitempty"`
	SpeakerConfidence float64         `json:"speaker_confidence,omitempty"`
	AlignmentState    alignment.State `json:"alignment_state,omitempty"`
}

// ConfidenceMetrics summarizes a version's content at save time.
type ConfidenceMetrics struct {
	TotalSegments  int     `json:"total_segments"`
	AvgConfidence  float64 `json:"avg_confidence"`
	ConfidentCount int     `json:"confident_count"`
	UncertainCount int     `json:"uncertain_count"`
	OverlapCount   int     `json:"overlap_count"`
}

// VersionSummary is one row of ListVersions, without the content
// array.
type VersionSummary struct {
	VersionNum        int
	Source            Source
	IsAuthoritative   bool
	CreatedAt         time.Time
	CreatedBy         string
	ConfidenceMetrics ConfidenceMetrics
}

// Store is the persistence collaborator contract. cmd/server saves the
// shutdown flush segment and diarized results through it.
type Store interface {
	SaveVersion(ctx context.Context, meetingID string, source Source, content []Segment, isAuthoritative bool, alignmentConfig map[string]interface{}, createdBy string) (int, error)
	ListVersions(ctx context.Context, meetingID string) ([]VersionSummary, error)
	GetVersionContent(ctx context.Context, meetingID string, versionNum int) ([]Segment, error)
	DeleteVersion(ctx context.Context, meetingID string, versionNum int) (bool, error)
}

// PostgresStore is a pgx/v5-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveVersion inserts a new version with an auto-incrementing version
// number scoped to meetingID, optionally demoting the previous
// authoritative version, all within a single transaction so that at
// most one authoritative version ever exists at once.
func (s *PostgresStore) SaveVersion(ctx context.Context, meetingID string, source Source, content []Segment, isAuthoritative bool, alignmentConfig map[string]interface{}, createdBy string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("versionstore: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var versionNum int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_num), 0) + 1
		FROM transcript_versions
		WHERE meeting_id = $1
	`, meetingID).Scan(&versionNum)
	if err != nil {
		return 0, fmt.Errorf("versionstore: next version number: %w", err)
	}

	metrics := calculateConfidenceMetrics(content)

	if isAuthoritative {
		if _, err := tx.Exec(ctx, `
			UPDATE transcript_versions
			SET is_authoritative = FALSE
			WHERE meeting_id = $1 AND is_authoritative = TRUE
		`, meetingID); err != nil {
			return 0, fmt.Errorf("versionstore: demote previous authoritative version: %w", err)
		}
	}

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return 0, fmt.Errorf("versionstore: marshal content: %w", err)
	}
	if alignmentConfig == nil {
		alignmentConfig = map[string]interface{}{}
	}
	alignmentJSON, err := json.Marshal(alignmentConfig)
	if err != nil {
		return 0, fmt.Errorf("versionstore: marshal alignment config: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return 0, fmt.Errorf("versionstore: marshal confidence metrics: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transcript_versions (
			meeting_id, version_num, source, content_json,
			is_authoritative, created_by, alignment_config, confidence_metrics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, meetingID, versionNum, source, contentJSON, isAuthoritative, createdBy, alignmentJSON, metricsJSON)
	if err != nil {
		return 0, fmt.Errorf("versionstore: insert version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("versionstore: commit: %w", err)
	}
	return versionNum, nil
}

func calculateConfidenceMetrics(segments []Segment) ConfidenceMetrics {
	if len(segments) == 0 {
		return ConfidenceMetrics{}
	}
	metrics := ConfidenceMetrics{TotalSegments: len(segments)}
	var total float64
	for _, seg := range segments {
		conf := seg.SpeakerConfidence
		total += conf
		switch seg.AlignmentState {
		case alignment.StateConfident:
			metrics.ConfidentCount++
		case alignment.StateUncertain:
			metrics.UncertainCount++
		case alignment.StateOverlap:
			metrics.OverlapCount++
		}
	}
	metrics.AvgConfidence = total / float64(len(segments))
	return metrics
}

// ListVersions returns every version for meetingID, newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, meetingID string) ([]VersionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT version_num, source, is_authoritative, created_at,
		       confidence_metrics, created_by
		FROM transcript_versions
		WHERE meeting_id = $1
		ORDER BY version_num DESC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("versionstore: list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionSummary
	for rows.Next() {
		var v VersionSummary
		var metricsRaw []byte
		if err := rows.Scan(&v.VersionNum, &v.Source, &v.IsAuthoritative, &v.CreatedAt, &metricsRaw, &v.CreatedBy); err != nil {
			return nil, fmt.Errorf("versionstore: scan version row: %w", err)
		}
		if len(metricsRaw) > 0 {
			if err := json.Unmarshal(metricsRaw, &v.ConfidenceMetrics); err != nil {
				return nil, fmt.Errorf("versionstore: unmarshal confidence metrics: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersionContent returns the content array for one version, or nil
// if it does not exist.
func (s *PostgresStore) GetVersionContent(ctx context.Context, meetingID string, versionNum int) ([]Segment, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT content_json
		FROM transcript_versions
		WHERE meeting_id = $1 AND version_num = $2
	`, meetingID, versionNum).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("versionstore: get version content: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var content []Segment
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("versionstore: unmarshal content: %w", err)
	}
	return content, nil
}

// DeleteVersion removes one version snapshot, reporting false if it
// did not exist.
func (s *PostgresStore) DeleteVersion(ctx context.Context, meetingID string, versionNum int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM transcript_versions
		WHERE meeting_id = $1 AND version_num = $2
	`, meetingID, versionNum)
	if err != nil {
		return false, fmt.Errorf("versionstore: delete version: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
