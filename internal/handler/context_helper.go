package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/middleware"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

// actorFromContext writes a 401 and returns false when the request carries no claims.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func invalidPayload(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

func pageParams(c *gin.Context, defaultSize int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 {
		size = defaultSize
	}
	return page, size
}

func boolQuery(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be a boolean")
	}
	return &v, nil
}

// timeQuery accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+", expected RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}

func listQuery(c *gin.Context, key string) []string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// respondCached echoes cache and academic year metadata with the payload.
func respondCached(c *gin.Context, data interface{}, cacheHit bool, academicYear string) {
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetAcademicYear(c, academicYear)
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}
