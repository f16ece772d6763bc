package scoring

import (
	"math"
	"time"

	"github.com/reels-agent/internal/models"
)

// Sub-score weights for the composite viral score
const (
	weightViewToFollowRatio = 0.30
	weightEngagementRate    = 0.30
	weightRecency           = 0.15
	weightVisualQuality     = 0.15
	weightAudioTrend        = 0.10
)

// Scores holds the five normalized sub-scores (0-100, discrete bands)
type Scores struct {
	ViewToFollowRatio int `json:"view_to_follow_ratio"`
	EngagementRate    int `json:"engagement_rate"`
	Recency           int `json:"recency"`
	VisualQuality     int `json:"visual_quality"`
	AudioTrend        int `json:"audio_trend"`
}

// ComputeScores evaluates every sub-score for a reel at the given instant
func ComputeScores(reel *models.Reel, now time.Time) Scores {
	return Scores{
		ViewToFollowRatio: viewToFollowRatioScore(reel.Views, reel.FollowerCount),
		EngagementRate:    engagementRateScore(reel.Views, reel.Likes, reel.Comments, reel.Shares),
		Recency:           recencyScore(now.Sub(reel.PostedAt)),
		VisualQuality:     visualQualityScore(reel.HasWatermark, reel.IsFromOfficial, reel.CreatorCredited),
		AudioTrend:        audioTrendScore(),
	}
}

// Composite combines the sub-scores with fixed weights, rounded to the
// nearest integer and capped at 100.
func (s Scores) Composite() int {
	total := float64(s.ViewToFollowRatio)*weightViewToFollowRatio +
		float64(s.EngagementRate)*weightEngagementRate +
		float64(s.Recency)*weightRecency +
		float64(s.VisualQuality)*weightVisualQuality +
		float64(s.AudioTrend)*weightAudioTrend

	score := int(math.Round(total))
	if score > 100 {
		score = 100
	}
	return score
}

// Details returns the sub-scores in the persisted audit shape
func (s Scores) Details() models.JSON {
	return models.JSON{
		"view_to_follow_ratio": s.ViewToFollowRatio,
		"engagement_rate":      s.EngagementRate,
		"recency":              s.Recency,
		"visual_quality":       s.VisualQuality,
		"audio_trend":          s.AudioTrend,
	}
}

// viewToFollowRatioScore bands views relative to the source's follower
// count; the ratio is undefined without followers.
func viewToFollowRatioScore(views, followers int) int {
	if followers == 0 {
		return 0
	}

	ratio := float64(views) / float64(followers)
	switch {
	case ratio >= 3.0:
		return 100
	case ratio >= 2.0:
		return 90
	case ratio >= 1.5:
		return 80
	case ratio >= 1.0:
		return 70
	case ratio >= 0.5:
		return 50
	case ratio >= 0.3:
		return 30
	default:
		return 20
	}
}

func engagementRateScore(views, likes, comments, shares int) int {
	if views == 0 {
		return 0
	}

	rate := float64(likes+comments+shares) / float64(views)
	switch {
	case rate >= 0.15:
		return 100
	case rate >= 0.10:
		return 90
	case rate >= 0.08:
		return 80
	case rate >= 0.05:
		return 70
	case rate >= 0.03:
		return 50
	default:
		return 30
	}
}

func recencyScore(age time.Duration) int {
	hours := age.Hours()
	switch {
	case hours <= 24:
		return 100
	case hours <= 48:
		return 90
	case hours <= 72:
		return 80
	case hours <= 96:
		return 70
	case hours <= 120:
		return 50
	default:
		return 30
	}
}

func visualQualityScore(hasWatermark, isFromOfficial, creatorCredited bool) int {
	score := 70
	if !hasWatermark {
		score += 20
	}
	if isFromOfficial {
		score += 10
	}
	if creatorCredited {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

// audioTrendScore is a placeholder constant; no external trend signal is
// modeled yet.
func audioTrendScore() int {
	return 80
}
