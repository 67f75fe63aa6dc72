package apiclient

import (
	"errors"
	"net/mail"
	"strings"
)

// ContactTopics lists the topics the contact form offers, keyed by value.
var ContactTopics = map[string]string{
	"geo":        "GEO Services",
	"seo":        "SEO & Content",
	"ppc":        "Paid Media",
	"tool":       "VISIBI Tool",
	"audit":      "AI Visibility Audit",
	"integrated": "Integrated Strategy",
	"other":      "Other",
}

// ContactForm is the body of POST /api/send-email. Every field is required.
type ContactForm struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// Normalize trims surrounding whitespace from every field.
func (f ContactForm) Normalize() ContactForm {
	return ContactForm{
		Name:    strings.TrimSpace(f.Name),
		Company: strings.TrimSpace(f.Company),
		Email:   strings.TrimSpace(f.Email),
		Topic:   strings.ToLower(strings.TrimSpace(f.Topic)),
		Message: strings.TrimSpace(f.Message),
	}
}

// Validate reports every missing or malformed field. The returned error
// matches ErrValidation.
func (f ContactForm) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"name", f.Name},
		{"company", f.Company},
		{"email", f.Email},
		{"topic", f.Topic},
		{"message", f.Message},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, &FieldError{Field: r.name, Reason: "is required"})
		}
	}
	if f.Email != "" {
		if err := ValidateEmail(f.Email); err != nil {
			errs = append(errs, err)
		}
	}
	if f.Topic != "" {
		if _, ok := ContactTopics[strings.ToLower(strings.TrimSpace(f.Topic))]; !ok {
			errs = append(errs, &FieldError{Field: "topic", Reason: "is not a known topic"})
		}
	}
	return errors.Join(errs...)
}

// ValidateEmail applies the site's check (non-empty, contains "@") and then
// requires a parseable single address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return &FieldError{Field: "email", Reason: "must be a valid email address"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &FieldError{Field: "email", Reason: "must be a valid email address"}
	}
	return nil
}
