package v1

import (
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, filter any) bool {
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}

// pageOrDefault fills in paging when the caller sent none
func pageOrDefault(f *types.QueryFilter) *types.QueryFilter {
	if f == nil {
		return types.NewDefaultQueryFilter()
	}
	return f
}
