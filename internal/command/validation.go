package command

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

// requireField checks a structural, non-empty-string invariant — the
// validate step of the command template.
func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func requireMaxLen(name, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s must be at most %d characters", name, max)
	}
	return nil
}

func validateEmail(email string) error {
	if err := requireField("email", email); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address %q: %w", email, err)
	}
	return nil
}

// validateURL allows an empty value (logo URLs are optional) but requires
// an absolute http(s) URL when one is supplied.
func validateURL(name, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}
	return nil
}

// validateColor requires a 6-hex-digit "#rrggbb" color, the shape the
// label-policy projection's UI consumers expect.
func validateColor(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) != 7 || raw[0] != '#' {
		return fmt.Errorf("invalid color %q: expected #rrggbb", raw)
	}
	for _, c := range raw[1:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return fmt.Errorf("invalid color %q: expected #rrggbb", raw)
		}
	}
	return nil
}

func validateHumanUserInput(in HumanUserInput) error {
	if err := requireField("username", in.Username); err != nil {
		return err
	}
	if err := requireMaxLen("username", in.Username, 200); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := requireField("firstName", in.FirstName); err != nil {
		return err
	}
	if err := requireField("lastName", in.LastName); err != nil {
		return err
	}
	if err := requireField("password", in.Password); err != nil {
		return err
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}
