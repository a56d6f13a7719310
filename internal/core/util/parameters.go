package util

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
)

// BindJSON decodes the request body into T. An empty body yields the zero
// value so that field validation reports what is missing.
func BindJSON[T any](c *gin.Context) (T, error) {
	var params T

	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		return params, err
	}

	return params, nil
}
