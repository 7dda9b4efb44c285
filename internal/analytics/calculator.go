// Package analytics holds the pure statistics used by the insight and
// recommendation collectors.
package analytics

import (
	"math"
	"sort"

	"readingly/pkg/domain"
)

// Daily achievement above target is capped so one binge day cannot
// dominate the mean.
const dailyAchievementCap = 150.0

// DailyGoalAchievementRate returns the rounded mean daily achievement
// percentage against target. No target or no progress counts as fully
// achieved. The first record has no baseline and scores 100. Negative page
// deltas from progress corrections pass through as negative rates so
// abnormal logging stays visible.
func DailyGoalAchievementRate(target *int, progress []domain.ProgressEntry) int {
	if target == nil || *target <= 0 || len(progress) == 0 {
		return 100
	}

	sum := 0.0
	for i, entry := range progress {
		if i == 0 {
			sum += 100
			continue
		}
		delta := float64(entry.Page - progress[i-1].Page)
		rate := delta / float64(*target) * 100
		if rate > dailyAchievementCap {
			rate = dailyAchievementCap
		}
		sum += rate
	}
	return int(math.Round(sum / float64(len(progress))))
}

// AggregateStats reduces per-book analytics into profile-level stats.
func AggregateStats(books []domain.BookAnalytics) domain.ProfileStats {
	stats := domain.ProfileStats{
		TotalBooksCompleted: len(books),
		FavoriteGenres:      []domain.GenreCount{},
	}

	ratingSum, rated := 0, 0
	daysSum := 0
	genreCounts := make(map[string]int)
	genreOrder := make([]string, 0)
	for _, b := range books {
		if b.Rating != nil {
			ratingSum += *b.Rating
			rated++
		}
		daysSum += b.DaysToComplete
		if b.TotalEngagement >= 10 {
			stats.HighEngagementBooks++
		}
		if b.Genre != "" {
			if _, seen := genreCounts[b.Genre]; !seen {
				genreOrder = append(genreOrder, b.Genre)
			}
			genreCounts[b.Genre]++
		}
	}

	if rated > 0 {
		stats.AverageRating = math.Round(float64(ratingSum)/float64(rated)*10) / 10
	}
	if len(books) > 0 {
		stats.AverageCompletionDays = int(math.Round(float64(daysSum) / float64(len(books))))
	}

	sort.SliceStable(genreOrder, func(i, j int) bool {
		return genreCounts[genreOrder[i]] > genreCounts[genreOrder[j]]
	})
	for i, genre := range genreOrder {
		if i == 3 {
			break
		}
		stats.FavoriteGenres = append(stats.FavoriteGenres, domain.GenreCount{
			Genre: genre,
			Count: genreCounts[genre],
		})
	}
	return stats
}
