package http

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/podnest/studio/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds the domain enums to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("recordingtype", func(fl validator.FieldLevel) bool {
			return domain.RecordingType(strings.ToUpper(fl.Field().String())).Valid()
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseRole(fl.Field().String())
			return err == nil
		})
	})
}
