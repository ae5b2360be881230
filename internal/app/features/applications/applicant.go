package applications

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/app/system/inputval"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/domain/models"
)

const (
	maxPassportLength = 20
	maxFormDataKeys   = 200
)

func cleanApplicant(a models.Applicant) models.Applicant {
	a.FullName = normalize.Name(a.FullName)
	a.DateOfBirth = strings.TrimSpace(a.DateOfBirth)
	a.Nationality = strings.ToUpper(strings.TrimSpace(a.Nationality))
	a.PassportNumber = strings.ToUpper(strings.Join(strings.Fields(a.PassportNumber), ""))
	a.PassportExpiry = strings.TrimSpace(a.PassportExpiry)
	return a
}

// cleanPatch tidies the fields present in p.
func cleanPatch(p models.ApplicantPatch) models.ApplicantPatch {
	a := cleanApplicant(p.Apply(models.Applicant{}))
	if p.FullName != nil {
		p.FullName = &a.FullName
	}
	if p.DateOfBirth != nil {
		p.DateOfBirth = &a.DateOfBirth
	}
	if p.Nationality != nil {
		p.Nationality = &a.Nationality
	}
	if p.PassportNumber != nil {
		p.PassportNumber = &a.PassportNumber
	}
	if p.PassportExpiry != nil {
		p.PassportExpiry = &a.PassportExpiry
	}
	return p
}

// validateApplicant checks the formats of the fields present. complete
// additionally requires every field, a past birth date and a passport
// valid after today, which is what submission needs.
func validateApplicant(a models.Applicant, complete bool, now time.Time) map[string]string {
	errs := map[string]string{}
	today := now.UTC().Format("2006-01-02")

	switch {
	case a.FullName == "" && complete:
		errs["applicant.full_name"] = "Full name is required."
	case utf8.RuneCountInString(a.FullName) > authutil.MaxNameLength:
		errs["applicant.full_name"] = "Full name is too long."
	}

	switch {
	case a.DateOfBirth == "":
		if complete {
			errs["applicant.date_of_birth"] = "Date of birth is required."
		}
	case !inputval.IsDate(a.DateOfBirth) || !validDate(a.DateOfBirth):
		errs["applicant.date_of_birth"] = "Date of birth must be YYYY-MM-DD."
	case a.DateOfBirth >= today:
		errs["applicant.date_of_birth"] = "Date of birth must be in the past."
	}

	switch {
	case a.Nationality == "":
		if complete {
			errs["applicant.nationality"] = "Nationality is required."
		}
	case !inputval.IsCountryCode(a.Nationality):
		errs["applicant.nationality"] = "Nationality must be a two-letter country code."
	}

	switch {
	case a.PassportNumber == "":
		if complete {
			errs["applicant.passport_number"] = "Passport number is required."
		}
	case len(a.PassportNumber) > maxPassportLength:
		errs["applicant.passport_number"] = "Passport number is too long."
	}

	switch {
	case a.PassportExpiry == "":
		if complete {
			errs["applicant.passport_expiry"] = "Passport expiry is required."
		}
	case !inputval.IsDate(a.PassportExpiry) || !validDate(a.PassportExpiry):
		errs["applicant.passport_expiry"] = "Passport expiry must be YYYY-MM-DD."
	case complete && a.PassportExpiry <= today:
		errs["applicant.passport_expiry"] = "Passport has expired."
	}
	return errs
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// validateFormData rejects keys that would address other fields when
// merged with dotted $set paths.
func validateFormData(data map[string]any) map[string]string {
	errs := map[string]string{}
	if len(data) > maxFormDataKeys {
		errs["form_data"] = "Too many form fields."
		return errs
	}
	for k := range data {
		if k == "" || strings.ContainsAny(k, ".$") {
			errs["form_data"] = "Form field names may not be empty or contain '.' or '$'."
			break
		}
	}
	return errs
}
