package crypto

import (
	"strings"
	"testing"
)

func TestGenerateActivationCodeFormat(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		code, err := GenerateActivationCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		groups := strings.Split(code, "-")
		if len(groups) != 5 {
			t.Fatalf("expected 5 groups, got %d in %q", len(groups), code)
		}
		for _, g := range groups {
			if len(g) != 5 {
				t.Fatalf("expected group of 5 chars, got %q in %q", g, code)
			}
			for _, c := range g {
				if !strings.ContainsRune(base32Alphabet, c) {
					t.Fatalf("character %q not in base32 alphabet, code %q", c, code)
				}
			}
		}
		if !ValidateActivationCodeChecksum(code) {
			t.Fatalf("freshly generated code failed checksum validation: %q", code)
		}
	}
}

func TestValidateActivationCodeChecksumRejectsTamperedPayload(t *testing.T) {
	t.Parallel()
	code, err := GenerateActivationCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stripped := strings.ReplaceAll(code, "-", "")
	flipped := flipChar(stripped, 0)
	if ValidateActivationCodeChecksum(flipped) {
		t.Fatalf("expected tampered payload to fail checksum")
	}
}

func TestValidateActivationCodeChecksumRejectsTamperedChecksum(t *testing.T) {
	t.Parallel()
	code, err := GenerateActivationCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stripped := strings.ReplaceAll(code, "-", "")
	flipped := flipChar(stripped, len(stripped)-1)
	if ValidateActivationCodeChecksum(flipped) {
		t.Fatalf("expected tampered checksum to fail validation")
	}
}

func TestValidateActivationCodeChecksumRejectsWrongLength(t *testing.T) {
	t.Parallel()
	if ValidateActivationCodeChecksum("ABCDE-ABCDE") {
		t.Fatalf("expected short code to fail validation")
	}
	if ValidateActivationCodeChecksum("") {
		t.Fatalf("expected empty code to fail validation")
	}
}

func TestGenerateShortActivationIDFormat(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		id, err := GenerateShortActivationID()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		groups := strings.Split(id, "-")
		if len(groups) != 2 {
			t.Fatalf("expected 2 groups, got %d in %q", len(groups), id)
		}
		for _, g := range groups {
			if len(g) != 5 {
				t.Fatalf("expected group of 5 chars, got %q in %q", g, id)
			}
		}
	}
}

func flipChar(s string, pos int) string {
	b := []byte(s)
	for _, c := range base32Alphabet {
		if byte(c) != b[pos] {
			b[pos] = byte(c)
			return string(b)
		}
	}
	return string(b)
}
