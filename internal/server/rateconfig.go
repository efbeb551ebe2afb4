package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Get Rate Configuration
// @Description  Current rate/tier snapshot used by the engines
// @Tags         admin
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /admin/rates [get]
func (s *Server) GetRateConfig(c *gin.Context) {
	snapshot, err := s.rateSvc.Snapshot(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"role_rates":                 snapshot.RoleRates,
		"base_rates":                 snapshot.BaseRates,
		"loyalty_rates":              snapshot.LoyaltyRates,
		"tiers":                      snapshot.Tiers,
		"seasons":                    snapshot.Seasons,
		"retention_second_season":    snapshot.RetentionSecondSeason,
		"retention_third_season":     snapshot.RetentionThirdSeason,
		"network_min_referrals":      snapshot.NetworkMinReferrals,
		"network_bonus_per_referral": snapshot.NetworkBonusPerReferral,
		"weekend_percent":            snapshot.WeekendPercent,
		"loaded_at":                  snapshot.LoadedAt,
	}})
}
