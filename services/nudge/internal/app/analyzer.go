package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"readingly/pkg/domain"
	"readingly/pkg/store"
)

// NudgeType classifies why a nudge is being sent.
type NudgeType string

const (
	NudgeInactive    NudgeType = "inactive"
	NudgeDeadline    NudgeType = "deadline"
	NudgeProgress    NudgeType = "progress"
	NudgeStreak      NudgeType = "streak"
	NudgeAchievement NudgeType = "achievement"
)

// Nudge is one ready-to-send push message.
type Nudge struct {
	Type  NudgeType
	Title string
	Body  string
	Data  map[string]string
}

const (
	inactiveThresholdDays = 3
	deadlineWindowDays    = 3
	progressThreshold     = 0.8
	streakWindowDays      = 7
)

// Analyzer derives a nudge from a user's current reading state, or
// nothing when no nudge applies. Priority order: inactivity, looming
// deadline, near-finish progress, streak.
type Analyzer struct {
	store store.Store
	now   func() time.Time
}

func NewAnalyzer(s store.Store) *Analyzer {
	return &Analyzer{store: s, now: time.Now}
}

// Analyze inspects the user's books. forceType skips the priority
// ladder and builds that nudge directly (used by test pushes).
func (a *Analyzer) Analyze(ctx context.Context, userID string, forceType NudgeType) (*Nudge, error) {
	books, err := a.store.ListBooks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("analyze reading state: %w", err)
	}
	if len(books) == 0 {
		return nil, nil
	}

	// newest activity first
	sort.Slice(books, func(i, j int) bool {
		return books[i].UpdatedAt.After(books[j].UpdatedAt)
	})
	current := books[0]
	now := a.now()

	daysInactive := -1
	if !current.UpdatedAt.IsZero() {
		daysInactive = int(now.Sub(current.UpdatedAt).Hours() / 24)
	}

	var progress float64
	if current.TotalPages > 0 {
		progress = float64(current.CurrentPage) / float64(current.TotalPages)
	}

	daysUntilDeadline := 0
	hasDeadline := false
	if current.TargetDate != nil {
		hasDeadline = true
		daysUntilDeadline = int(math.Ceil(current.TargetDate.Sub(now).Hours() / 24))
	}

	streak := readingStreak(books, now)

	nudgeType := forceType
	if nudgeType == "" {
		switch {
		case daysInactive >= inactiveThresholdDays:
			nudgeType = NudgeInactive
		case hasDeadline && daysUntilDeadline > 0 && daysUntilDeadline <= deadlineWindowDays:
			nudgeType = NudgeDeadline
		case progress >= progressThreshold && progress < 1.0:
			nudgeType = NudgeProgress
		case streak > 0 && streak < streakWindowDays:
			nudgeType = NudgeStreak
		default:
			return nil, nil
		}
	}

	switch nudgeType {
	case NudgeInactive:
		return &Nudge{
			Type:  NudgeInactive,
			Title: "독서를 잊지 마세요! 📚",
			Body:  fmt.Sprintf("%d일째 독서를 안 했네요. 다시 시작해볼까요?", daysInactive),
			Data: map[string]string{
				"bookId":       current.ID,
				"bookTitle":    current.Title,
				"daysInactive": strconv.Itoa(daysInactive),
			},
		}, nil
	case NudgeDeadline:
		return &Nudge{
			Type:  NudgeDeadline,
			Title: "목표 완료까지 얼마 안 남았어요! ⏰",
			Body:  fmt.Sprintf("%q 완독까지 %d일 남았습니다.", current.Title, daysUntilDeadline),
			Data: map[string]string{
				"bookId":        current.ID,
				"bookTitle":     current.Title,
				"daysRemaining": strconv.Itoa(daysUntilDeadline),
			},
		}, nil
	case NudgeProgress:
		percent := int(math.Round(progress * 100))
		return &Nudge{
			Type:  NudgeProgress,
			Title: "목표 달성까지 조금만 더! 🎯",
			Body:  fmt.Sprintf("%q %d%% 완독했습니다. 조금만 더 화이팅!", current.Title, percent),
			Data: map[string]string{
				"bookId":    current.ID,
				"bookTitle": current.Title,
				"progress":  strconv.Itoa(percent),
			},
		}, nil
	case NudgeStreak:
		return &Nudge{
			Type:  NudgeStreak,
			Title: "독서 연속일을 이어가세요! 🔥",
			Body:  fmt.Sprintf("독서 연속일이 %d일입니다! 오늘도 읽어볼까요?", streak),
			Data: map[string]string{
				"streak": strconv.Itoa(streak),
			},
		}, nil
	case NudgeAchievement:
		return &Nudge{
			Type:  NudgeAchievement,
			Title: "목표를 달성했어요! 🎉",
			Body:  fmt.Sprintf("%q 완독을 축하합니다!", current.Title),
			Data: map[string]string{
				"bookId":    current.ID,
				"bookTitle": current.Title,
			},
		}, nil
	default:
		return nil, nil
	}
}

// readingStreak counts distinct active days over the past week.
func readingStreak(books []domain.Book, now time.Time) int {
	cutoff := now.AddDate(0, 0, -streakWindowDays)
	days := make(map[string]struct{})
	for _, b := range books {
		if b.UpdatedAt.IsZero() || b.UpdatedAt.Before(cutoff) {
			continue
		}
		days[b.UpdatedAt.Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}
