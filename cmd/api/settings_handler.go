package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// policySettings is the effective policy as exposed over HTTP
type policySettings struct {
	MatchSameDay        bool     `json:"match_same_day"`
	MatchTimeTolerance  string   `json:"match_time_tolerance"`
	MatchTitleThreshold float64  `json:"match_title_threshold"`
	DigestDays          int      `json:"digest_days"`
	SkipMarkers         []string `json:"skip_markers"`
	MaxBodyLen          int      `json:"extract_max_body"`
	OracleTimeout       string   `json:"oracle_timeout"`
	CalendarTimeout     string   `json:"calendar_timeout"`
	CalendarRetries     int      `json:"calendar_retry_attempts"`
}

// GetPolicySettings returns the matching and digest thresholds in effect
// GET /api/settings/policy
func (h *Handler) GetPolicySettings(c *gin.Context) {
	p := h.policy
	c.JSON(http.StatusOK, policySettings{
		MatchSameDay:        p.MatchSameDay,
		MatchTimeTolerance:  p.MatchTimeTolerance.String(),
		MatchTitleThreshold: p.MatchTitleThreshold,
		DigestDays:          p.DigestDays,
		SkipMarkers:         p.SkipMarkers,
		MaxBodyLen:          p.MaxBodyLen,
		OracleTimeout:       p.OracleTimeout.String(),
		CalendarTimeout:     p.CalendarTimeout.String(),
		CalendarRetries:     p.CalendarRetries,
	})
}
