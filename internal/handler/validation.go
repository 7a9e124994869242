package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/coursegpt/coursegpt/internal/model"
)

// requestValidator はリクエストボディの構造体タグを検証する。
// エラーメッセージにはGoのフィールド名ではなくJSONのキー名を使う。
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest はリクエストを検証し、違反があればValidationErrorを返す。
// detailsには違反したフィールドごとのメッセージを "; " 区切りで含める。
func validateRequest(req any) *model.APIError {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}

	apiErr := model.NewValidationError("invalid request")
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		apiErr.Details = err.Error()
		return apiErr
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, formatFieldError(fe))
	}
	apiErr.Message = messages[0]
	apiErr.Details = strings.Join(messages, "; ")
	return apiErr
}

// formatFieldError は1件の検証エラーを読みやすいメッセージにする。
func formatFieldError(fe validator.FieldError) string {
	field := fieldPath(fe)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// fieldPath はトップレベルの構造体名を除いたJSONキーのパスを返す。
// 例: "createUserRequest.user.email" → "user.email"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
