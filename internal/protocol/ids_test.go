package protocol

import "testing"

func TestValidateSubdomainValid(t *testing.T) {
	valid := []string{
		"abc1234567",
		"ABCDEFGHIJ",
		"aB3dE6gH9j",
	}
	for _, s := range valid {
		ok, reason := ValidateSubdomain(s)
		if !ok {
			t.Errorf("ValidateSubdomain(%q) should be valid, got reason: %s", s, reason)
		}
	}
}

func TestValidateSubdomainEmpty(t *testing.T) {
	ok, _ := ValidateSubdomain("")
	if ok {
		t.Error("empty subdomain should be invalid")
	}
}

func TestValidateSubdomainWrongLength(t *testing.T) {
	invalid := []string{"short", "waytoolongsubdomain123"}
	for _, s := range invalid {
		ok, _ := ValidateSubdomain(s)
		if ok {
			t.Errorf("ValidateSubdomain(%q) should be invalid", s)
		}
	}
}

func TestValidateSubdomainSpecialChars(t *testing.T) {
	invalid := []string{"abc-def-gh", "abcdefgh_9", "abcdefgh.9"}
	for _, s := range invalid {
		ok, _ := ValidateSubdomain(s)
		if ok {
			t.Errorf("ValidateSubdomain(%q) should be invalid", s)
		}
	}
}

func TestGenerateRequestIDLength(t *testing.T) {
	id := GenerateRequestID()
	if len(id) != 16 {
		t.Errorf("expected length 16, got %d: %q", len(id), id)
	}
}

func TestGenerateRequestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Errorf("duplicate request id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateMessageIDHasEpochPrefix(t *testing.T) {
	id := GenerateMessageID(1700000000000)
	want := "1700000000000-"
	if len(id) <= len(want) || id[:len(want)] != want {
		t.Errorf("expected message id to start with %q, got %q", want, id)
	}
}
