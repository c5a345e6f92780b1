package suggest

import (
	"testing"

	"studiofinder/suggestservice/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		input string
		want  domain.QueryKind
	}{
		{input: "SW1A 1AA", want: domain.QueryKindLocation},
		{input: "sw1a1aa", want: domain.QueryKindLocation},
		{input: "  M1 1AE ", want: domain.QueryKindLocation},
		{input: "90210", want: domain.QueryKindLocation},
		{input: "90210-1234", want: domain.QueryKindLocation},
		{input: "joe_123", want: domain.QueryKindUser},
		{input: "Voice-Pro", want: domain.QueryKindUser},
		{input: "ab", want: domain.QueryKindLocation},
		{input: "new york", want: domain.QueryKindLocation},
		{input: "abcdefghijklmnopqrstu", want: domain.QueryKindLocation},
		{input: "joe.smith", want: domain.QueryKindLocation},
		{input: "", want: domain.QueryKindLocation},
	}
	for _, tc := range cases {
		if got := Classify(tc.input); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestShouldQueryUsers(t *testing.T) {
	if !ShouldQueryUsers("SW1A 1AA", Classify("SW1A 1AA")) {
		t.Fatal("postcode of length 8 should still query users")
	}
	if !ShouldQueryUsers("joe_123", domain.QueryKindUser) {
		t.Fatal("user-like input should query users")
	}
	if ShouldQueryUsers("ny", domain.QueryKindLocation) {
		t.Fatal("two-character location input should not query users")
	}
}

func TestIsPostcode(t *testing.T) {
	for _, value := range []string{"EC1A 1BB", "W1A 0AX", "B33 8TH", "10001", "10001-0001"} {
		if !IsPostcode(value) {
			t.Errorf("expected %q to be a postcode", value)
		}
	}
	for _, value := range []string{"London", "1000", "EC1A", "123456"} {
		if IsPostcode(value) {
			t.Errorf("expected %q not to be a postcode", value)
		}
	}
}
