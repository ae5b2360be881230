// Package inputval validates decoded JSON request bodies with struct tags,
// using waffle/pantry/validate plus visadesk's own rules.
//
// Example:
//
//	type createStaffInput struct {
//	    FullName string `json:"full_name" validate:"required,max=120" label:"Full name"`
//	    Email    string `json:"email" validate:"required,email,max=254" label:"Email"`
//	    Role     string `json:"role" validate:"required,staffrole" label:"Role"`
//	}
//
//	if res := inputval.Validate(in); res.HasErrors() {
//	    jsonutil.ValidationError(w, res.Fields())
//	    return
//	}
package inputval

import (
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Result holds validation results with user-friendly messages.
type Result struct {
	Errors []FieldError
}

// FieldError is the validation error for one field.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// First returns the first error message, or empty string if no errors.
func (r *Result) First() string {
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return ""
}

// Fields returns field -> message, keeping the first message per field.
func (r *Result) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// Add appends an error produced outside struct tags, such as a cross-field rule.
func (r *Result) Add(field, message string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Label: field, Message: message})
}

var (
	customValidator *validate.Validator
	validatorOnce   sync.Once
)

func stringRule(fn func(string) bool) func(any) bool {
	return func(value any) bool {
		s, ok := value.(string)
		return ok && fn(s)
	}
}

func getValidator() *validate.Validator {
	validatorOnce.Do(func() {
		customValidator = validate.New(validate.WithStopOnFirstError())
		customValidator.RegisterRuleFunc("httpurl", stringRule(IsValidHTTPURL), "httpurl")
		customValidator.RegisterRuleFunc("objectid", stringRule(IsValidObjectID), "objectid")
		customValidator.RegisterRuleFunc("countrycode", stringRule(IsCountryCode), "countrycode")
		customValidator.RegisterRuleFunc("slug", stringRule(IsSlug), "slug")
		customValidator.RegisterRuleFunc("staffrole", stringRule(IsGrantableRole), "staffrole")
		customValidator.RegisterRuleFunc("status", stringRule(models.IsValidStatus), "status")
		customValidator.RegisterRuleFunc("caseprefix", stringRule(IsCasePrefix), "caseprefix")
		customValidator.RegisterRuleFunc("date", stringRule(IsDate), "date")
	})
	return customValidator
}

// Validate checks s against its `validate` tags. Fields are named by
// their json tag, labels come from the `label` tag.
//
// Rules from pantry/validate: required, email, oneof, min, max.
// Rules added here: httpurl, objectid, countrycode, slug, staffrole,
// status, caseprefix, date.
func Validate(s any) *Result {
	result := &Result{}

	err := getValidator().Struct(s)
	if err == nil {
		return result
	}

	labels := getFieldLabels(s)
	if errs, ok := err.(validate.Errors); ok {
		for _, e := range errs {
			label := labels[e.Field]
			if label == "" {
				label = e.Field
			}
			result.Errors = append(result.Errors, FieldError{
				Field:   e.Field,
				Label:   label,
				Message: formatMessage(label, e.Rule, e.Param),
			})
		}
	}
	return result
}

func getFieldLabels(s any) map[string]string {
	labels := make(map[string]string)

	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return labels
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			if n, _, _ := strings.Cut(tag, ","); n != "" && n != "-" {
				name = n
			}
		}
		if label := field.Tag.Get("label"); label != "" {
			labels[name] = label
		}
	}
	return labels
}

func formatMessage(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "email":
		return "A valid email address is required."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "min":
		return label + " must be at least " + param + "."
	case "max":
		return label + " must be at most " + param + "."
	case "httpurl":
		return label + " must be a valid URL starting with http:// or https://."
	case "objectid":
		return label + " is not a valid ID."
	case "countrycode":
		return label + " must be a two-letter country code."
	case "slug":
		return label + " may only contain lowercase letters, digits and dashes."
	case "staffrole":
		return label + " must be one of: " + strings.Join(models.StaffRoles(), ", ") + "."
	case "status":
		return label + " must be active or disabled."
	case "caseprefix":
		return label + " must be 2 to 5 uppercase letters."
	case "date":
		return label + " must be a date in YYYY-MM-DD format."
	default:
		return label + " is invalid."
	}
}

// IsValidEmail checks for a bare RFC 5322 address.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// IsValidHTTPURL checks if the given string is a valid http:// or https:// URL.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidObjectID checks if the given string is a valid MongoDB ObjectID hex.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	return err == nil
}

var (
	countryRE = regexp.MustCompile(`^[A-Z]{2}$`)
	slugRE    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	prefixRE  = regexp.MustCompile(`^[A-Z]{2,5}$`)
	dateRE    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// IsCountryCode checks for an uppercase ISO 3166-1 alpha-2 code.
func IsCountryCode(s string) bool { return countryRE.MatchString(s) }

// IsSlug checks for a lowercase dash-separated slug of at most 64 chars.
func IsSlug(s string) bool { return len(s) <= 64 && slugRE.MatchString(s) }

// IsCasePrefix checks a brand's case number prefix.
func IsCasePrefix(s string) bool { return prefixRE.MatchString(s) }

// IsDate checks a YYYY-MM-DD date shape. Calendar validity is checked by callers.
func IsDate(s string) bool { return dateRE.MatchString(s) }

// IsGrantableRole reports whether a brand admin may give this role to staff.
func IsGrantableRole(role string) bool {
	for _, r := range models.StaffRoles() {
		if r == role {
			return true
		}
	}
	return false
}
