package feed

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"
	"time"

	"postboard/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var displayName = regexp.MustCompile(`^[a-zA-Z ]+$`)

type CreatePostInput struct {
	Content  string `json:"content" validate:"min=1,max=160"`
	Location string `json:"location" validate:"min=5,max=120"`
}

type CommentInput struct {
	Content string `json:"content" validate:"min=1,max=160"`
}

type ReactInput struct {
	Reaction string `json:"reaction" validate:"oneof=UPVOTE DOWNVOTE"`
}

type SearchInput struct {
	Query string `json:"query" validate:"min=4,max=120"`
}

type AccountInput struct {
	DisplayName string    `json:"displayName" validate:"min=2,max=60,displayname"`
	DateOfBirth time.Time `json:"dateOfBirth" validate:"required,minage"`
	Location    string    `json:"location" validate:"min=10,max=40"`
	Tagline     string    `json:"tagline" validate:"max=160"`
	Email       string    `json:"email" validate:"required,email"`
}

// inputs validates service inputs and strips markup from free text.
type inputs struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
}

func newInputs(now func() time.Time, minAge int) *inputs {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
		return displayName.MatchString(fl.Field().String())
	})
	v.RegisterValidation("minage", func(fl validator.FieldLevel) bool {
		dob, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return !dob.After(now().AddDate(-minAge, 0, 0))
	})

	return &inputs{validate: v, policy: bluemonday.StrictPolicy()}
}

// clean trims s and removes any HTML, keeping the plain text.
func (in *inputs) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(in.policy.Sanitize(strings.TrimSpace(s))))
}

func (in *inputs) check(v interface{}) error {
	err := in.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Internal("Could not validate input", err)
	}
	fe := verrs[0]
	return apperr.Validation(fe.Field(), fe.Tag(), "[User Input] "+describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "displayname":
		return fmt.Sprintf("%s may only contain letters and spaces", fe.Field())
	case "minage":
		return "You are too young to use this service"
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
