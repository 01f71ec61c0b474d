// Package review implements the weekly memory review job (C14): per-user
// low-hotness archival and stale-memory flagging, grounded in
// jobs/memory_review_job.py from original_source/.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

const (
	defaultArchiveAfterDays   = 90
	defaultMaxAccessThreshold = 3
	defaultStaleCheckDays     = 180
)

// Source is what the review job needs from a long-term memory backend.
type Source interface {
	ListUserIDs(ctx context.Context) []string
	ListActive(ctx context.Context, userID string, limit int) []*memory.Record
	FindLowHotness(ctx context.Context, userID string, maxAccess int64, olderThanDays int) []*memory.Record
	Archive(ctx context.Context, id string) bool
	MarkForReview(ctx context.Context, id, reason string) bool
	Stats(ctx context.Context, userID string) map[string]any
}

// Report is one user's review outcome.
type Report struct {
	UserID               string
	GeneratedAt          time.Time
	LowHotnessCount      int
	PotentiallyStaleCount int
	ArchivedCount        int
	ReviewCount          int
	Suggestions          []string
	Stats                map[string]any
}

// Job runs the weekly per-user memory review.
type Job struct {
	source             Source
	archiveAfterDays   int
	maxAccessThreshold int64
	staleCheckDays     int
	log                *logrus.Entry
}

// Config tunes the job's archive/stale thresholds.
type Config struct {
	ArchiveAfterDays   int
	MaxAccessThreshold int64
	StaleCheckDays     int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		ArchiveAfterDays:   defaultArchiveAfterDays,
		MaxAccessThreshold: defaultMaxAccessThreshold,
		StaleCheckDays:     defaultStaleCheckDays,
	}
}

// New builds a review job against a long-term memory source.
func New(source Source, cfg Config) *Job {
	if cfg.ArchiveAfterDays <= 0 {
		cfg.ArchiveAfterDays = defaultArchiveAfterDays
	}
	if cfg.MaxAccessThreshold <= 0 {
		cfg.MaxAccessThreshold = defaultMaxAccessThreshold
	}
	if cfg.StaleCheckDays <= 0 {
		cfg.StaleCheckDays = defaultStaleCheckDays
	}
	return &Job{
		source:             source,
		archiveAfterDays:   cfg.ArchiveAfterDays,
		maxAccessThreshold: cfg.MaxAccessThreshold,
		staleCheckDays:     cfg.StaleCheckDays,
		log:                logrus.WithField("component", "memory_review_job"),
	}
}

// RunWeeklyReview reviews every user's memory and returns one report each.
func (j *Job) RunWeeklyReview(ctx context.Context) []Report {
	j.log.Info("starting weekly memory review")
	userIDs := j.source.ListUserIDs(ctx)
	if len(userIDs) == 0 {
		j.log.Info("no users found")
		return nil
	}

	reports := make([]Report, 0, len(userIDs))
	var totalArchived, totalReview int
	for _, userID := range userIDs {
		report := j.reviewUser(ctx, userID)
		reports = append(reports, report)
		totalArchived += report.ArchivedCount
		totalReview += report.ReviewCount
		j.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"archived": report.ArchivedCount,
			"review":   report.ReviewCount,
			"low_hotness": report.LowHotnessCount,
		}).Info("reviewed user memory")
	}

	j.log.WithFields(logrus.Fields{
		"users":    len(reports),
		"archived": totalArchived,
		"review":   totalReview,
	}).Info("weekly memory review complete")
	return reports
}

func (j *Job) reviewUser(ctx context.Context, userID string) Report {
	report := Report{UserID: userID, GeneratedAt: time.Now()}
	report.Stats = j.source.Stats(ctx, userID)

	lowHotness := j.source.FindLowHotness(ctx, userID, j.maxAccessThreshold, j.archiveAfterDays)
	report.LowHotnessCount = len(lowHotness)
	for _, rec := range lowHotness {
		if j.source.Archive(ctx, rec.ID) {
			report.ArchivedCount++
			j.log.WithFields(logrus.Fields{
				"user_id":      userID,
				"memory_id":    rec.ID,
				"access_count": rec.AccessCount,
			}).Info("archived low-hotness memory")
		}
	}

	stale := j.findPotentiallyStale(ctx, userID)
	report.PotentiallyStaleCount = len(stale)
	for _, rec := range stale {
		reason := fmt.Sprintf(
			"This memory has existed for %d days but is still being accessed (access_count=%d); please confirm it is still valid.",
			j.staleCheckDays, rec.AccessCount)
		if j.source.MarkForReview(ctx, rec.ID, reason) {
			report.ReviewCount++
		}
	}

	if report.ArchivedCount > 0 {
		report.Suggestions = append(report.Suggestions, fmt.Sprintf("Archived %d low-hotness memories", report.ArchivedCount))
	}
	if report.ReviewCount > 0 {
		report.Suggestions = append(report.Suggestions, fmt.Sprintf("%d memories flagged for manual staleness review", report.ReviewCount))
	}
	if total, ok := report.Stats["total_count"].(int); ok && total > 1000 {
		report.Suggestions = append(report.Suggestions, fmt.Sprintf("User has a large memory count (%d); consider periodic low-value cleanup", total))
	}

	return report
}

// findPotentiallyStale returns active records last updated more than
// staleCheckDays ago that are still being accessed.
func (j *Job) findPotentiallyStale(ctx context.Context, userID string) []*memory.Record {
	cutoff := time.Now().AddDate(0, 0, -j.staleCheckDays)
	all := j.source.ListActive(ctx, userID, 1000)
	var stale []*memory.Record
	for _, rec := range all {
		if rec.UpdatedAt.Before(cutoff) && rec.AccessCount > 0 {
			stale = append(stale, rec)
		}
	}
	return stale
}
