package v1

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{
		"alice",
		"my-repo",
		"under_score",
		"UPPER",
		"a",
		"0day",
		strings.Repeat("x", MaxIdentifierLength),
	}
	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("ValidateIdentifier(%q): unexpected error %v", name, err)
		}
	}

	invalid := []string{
		"",
		"has space",
		"owner/repo",
		"dot.ted",
		"..",
		"semi;colon",
		"uniçode",
		strings.Repeat("x", MaxIdentifierLength+1),
	}
	for _, name := range invalid {
		if err := ValidateIdentifier(name); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected an error", name)
		}
	}
}

func TestParseTag(t *testing.T) {
	for _, tag := range []string{"1.0.0", "v1.0.0", "1.2.3-rc.1", "10.20.30+build.5"} {
		if _, err := ParseTag(tag); err != nil {
			t.Errorf("ParseTag(%q): unexpected error %v", tag, err)
		}
	}

	for _, tag := range []string{"", "latest", "1.0", "1", "v", "1.0.0.0", "one.two.three"} {
		if _, err := ParseTag(tag); err == nil {
			t.Errorf("ParseTag(%q): expected an error", tag)
		}
	}
}

func TestParseTagPrefixEquivalence(t *testing.T) {
	plain, err := ParseTag("1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	prefixed, err := ParseTag("v1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !plain.Equal(prefixed) {
		t.Errorf("v-prefixed and bare tags should parse to the same version")
	}
}
