package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/pkg/util"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// plan names and slugs: lower-case words joined by dashes or underscores
	slugRegex = regexp.MustCompile(`^[a-z0-9]+([-_][a-z0-9]+)*$`)

	// catalog keys: dotted lower-case segments, e.g. "property.create"
	catalogKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	register := func(tag string, fn func(string) bool) {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}
	register("mailbox", IsValidEmail)
	register("slug", IsValidSlug)
	register("catalogkey", IsValidCatalogKey)
	register("domain", IsValidDomain)
	register("pagepath", IsValidPagePath)
	register("objecttype", func(s string) bool {
		_, ok := access.ParseObjectType(s)
		return ok
	})
	register("action", func(s string) bool {
		_, ok := access.ParseAction(s)
		return ok
	})
	register("featurekey", access.IsKnownFeature)
	register("cron", func(s string) bool {
		return util.ValidateCronExpr(s) == nil
	})

	return v
}

// Struct validates s against its `validate` tags and returns field messages
// keyed by JSON path ("permissions[2].object_type"). An empty map means valid.
func Struct(s interface{}) map[string]string {
	errs := make(map[string]string)

	err := validate.Struct(s)
	if err == nil {
		return errs
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["_"] = err.Error()
		return errs
	}
	for _, fe := range fieldErrs {
		errs[fieldPath(fe)] = message(fe)
	}
	return errs
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email", "mailbox":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "slug":
		return "must contain only lower-case letters, digits, dashes and underscores"
	case "catalogkey":
		return "must be dotted lower-case segments"
	case "domain":
		return "must be a valid domain name"
	case "pagepath":
		return "must be an absolute path"
	case "objecttype":
		return "unknown object type"
	case "action":
		return "unknown action"
	case "featurekey":
		return "unknown feature"
	case "cron":
		return "invalid cron expression"
	case "uuid":
		return "must be a UUID"
	}
	return "failed " + fe.Tag() + " validation"
}

func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

func IsValidDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	return domainRegex.MatchString(domain)
}

func IsValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

func IsValidSlug(s string) bool {
	return len(s) <= 64 && slugRegex.MatchString(s)
}

func IsValidCatalogKey(s string) bool {
	return len(s) <= 128 && catalogKeyRegex.MatchString(s)
}

// IsValidPagePath accepts absolute paths without query or fragment.
func IsValidPagePath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.ContainsAny(p, "?# \t\n")
}

// IsValidPassword checks password strength
func IsValidPassword(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > 128 {
		return false, "Password must be at most 128 characters"
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasLetter {
		return false, "Password must contain at least one letter"
	}
	if !hasNumber {
		return false, "Password must contain at least one number"
	}

	return true, ""
}

// SanitizeString removes null bytes and control characters other than
// newlines and tabs.
func SanitizeString(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// TruncateString cuts s to at most maxLen runes.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
