package licenses

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterStructValidation(contactDetailsValidation, ContactDetailsRecord{})
	return v
}

// A grouping without a reachable technical contact cannot be merged; the
// billing contact stays optional.
func contactDetailsValidation(sl validator.StructLevel) {
	details := sl.Current().Interface().(ContactDetailsRecord)
	if strings.TrimSpace(details.TechnicalContact.Email) == "" {
		sl.ReportError(details.TechnicalContact.Email, "technicalContact.email", "TechnicalContact.Email", "required", "")
	}
}

// Record is one license row in the export artifact, shaped the way the
// vendor reporting API serializes it. Addon name is allowed to be empty
// here: a license whose addon cannot be resolved is skipped later, it does
// not invalidate the whole record.
type Record struct {
	LicenseID            string               `json:"licenseId" validate:"required"`
	AddonKey             string               `json:"addonKey" validate:"required"`
	AddonName            string               `json:"addonName"`
	Hosting              string               `json:"hosting"`
	HostLicenseID        string               `json:"hostLicenseId"`
	LastUpdated          string               `json:"lastUpdated"`
	LicenseType          string               `json:"licenseType"`
	MaintenanceStartDate string               `json:"maintenanceStartDate"`
	MaintenanceEndDate   string               `json:"maintenanceEndDate"`
	Status               string               `json:"status"`
	Tier                 string               `json:"tier"`
	PartnerDetails       *PartnerRecord       `json:"partnerDetails"`
	ContactDetails       ContactDetailsRecord `json:"contactDetails"`
}

// PartnerRecord is the reseller block of a license record.
type PartnerRecord struct {
	PartnerName    string         `json:"partnerName"`
	PartnerType    string         `json:"partnerType"`
	BillingContact *ContactRecord `json:"billingContact"`
}

// ContactDetailsRecord groups the customer contacts of a license record.
type ContactDetailsRecord struct {
	Company          string         `json:"company"`
	Country          string         `json:"country"`
	Region           string         `json:"region"`
	BillingContact   *ContactRecord `json:"billingContact"`
	TechnicalContact ContactRecord  `json:"technicalContact"`
}

// ContactRecord is one person in a license record.
type ContactRecord struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
}

// TechEmail returns the normalized technical contact email of the record.
func (r Record) TechEmail() string {
	return normalizeEmail(r.ContactDetails.TechnicalContact.Email)
}

// MaintenanceEnd is the parsed maintenance end date, nil when the export
// carries none or an unreadable one.
func (r Record) MaintenanceEnd() *time.Time {
	ts, err := parseDate(r.MaintenanceEndDate)
	if err != nil {
		return nil
	}
	return ts
}

// ValidateRecord checks the fields the merge cannot proceed without.
func ValidateRecord(record Record) error {
	if err := validate.Struct(record); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "license record failed validation").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "license record failed validation")
}

func validationMessage(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return "is required"
	}
	return "is invalid"
}

// normalizeEmail folds case so the same person never lands twice. Upstream
// mixes casing between the billing and technical blocks of one customer.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseDate reads the date-only form the export uses. Empty means the
// vendor has no value, which is fine; garbage is a validation problem.
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
