package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  user@example.com  ", "user@example.com"},
		{"\tuser@example.com\n", "user@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Email(tt.input); got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Ana Lima", "Ana Lima"},
		{"  Ana   Lima  ", "Ana Lima"},
		{"\tAna\nLima", "Ana Lima"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCountryCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"us", "US"},
		{" In ", "IN"},
		{"USA", ""},
		{"U1", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CountryCode(tt.input); got != tt.want {
				t.Errorf("CountryCode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"usd", "USD"},
		{" eur ", "EUR"},
		{"US", ""},
		{"U5D", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Currency(tt.input); got != tt.want {
				t.Errorf("Currency(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Tourist Visa", "tourist-visa"},
		{"  Rush -- 48h!  ", "rush-48h"},
		{"passport_renewal", "passport-renewal"},
		{"---", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slug(tt.input); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+1 (555) 010-2000", "+15550102000"},
		{"555.010.2000", "5550102000"},
		{"1+2", "12"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Phone(tt.input); got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoleAndStatus(t *testing.T) {
	if got := Role("  Admin "); got != "admin" {
		t.Errorf("Role() = %q, want %q", got, "admin")
	}
	if got := Status(" DISABLED"); got != "disabled" {
		t.Errorf("Status() = %q, want %q", got, "disabled")
	}
}
