package handlers

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/pkg/response"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the custom binding tags used by request structs.
// It must run before the first request is bound; binding a struct that uses a
// missing tag panics.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}
		err := v.RegisterValidation("project_role", func(fl validator.FieldLevel) bool {
			_, err := models.ParseProjectRole(fl.Field().String())
			return err == nil
		})
		if err != nil {
			registerErr = fmt.Errorf("register project_role: %w", err)
		}
	})
	return registerErr
}

// pathID parses an unsigned id path parameter and answers 400 when it is malformed.
func pathID(c *gin.Context, name, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return uint(id), true
}
