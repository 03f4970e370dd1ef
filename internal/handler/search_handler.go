package handler

import (
	"encoding/json"
	"strconv"
	"strings"

	"Hope_Community/internal/repository/store"
	"Hope_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SearchHandler struct {
	base
	svc *service.SearchService
}

func NewSearchHandler(svc *service.SearchService, log *zap.Logger) *SearchHandler {
	return &SearchHandler{base: base{log: log}, svc: svc}
}

// SearchUsers GET /api/auth/users/search，community_filters 为 JSON 数组
func (h *SearchHandler) SearchUsers(c *gin.Context) {
	f := service.SearchFilters{
		DiseaseTag:         c.Query("disease_tag"),
		Hospital:           c.Query("hospital"),
		Gender:             c.Query("gender"),
		Hukou:              c.Query("hukou"),
		Education:          c.Query("education"),
		IncomeIndividual:   c.Query("income_individual"),
		IncomeFamily:       c.Query("income_family"),
		Housing:            c.Query("housing"),
		EconomicDependency: c.Query("economic_dependency"),
		MaritalStatus:      c.Query("marital_status"),
		FertilityStatus:    c.Query("fertility_status"),
		Location:           c.Query("location"),
		Profession:         c.Query("profession"),
		ExcludeUsername:    c.Query("exclude_username"),
	}
	if raw := strings.TrimSpace(c.Query("community_filters")); raw != "" {
		var filters []store.CommunityFilter
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			badRequest(c, "community_filters 格式错误")
			return
		}
		f.CommunityFilters = filters
	}
	var valid bool
	if f.AgeMin, valid = optionalInt(c, "age_min"); !valid {
		return
	}
	if f.AgeMax, valid = optionalInt(c, "age_max"); !valid {
		return
	}

	res, err := h.svc.Search(c.Request.Context(), f, queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, res)
}

func optionalInt(c *gin.Context, key string) (*int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "无效的 "+key)
		return nil, false
	}
	return &v, true
}
