package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"15551234567", "+15551234567"},
		{"+1 (555) 123-4567", "+15551234567"},
		{"5511987654321", "+5511987654321"},
		{"", ""},
		{"abc", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIsStable(t *testing.T) {
	once := Normalize("447700900123")
	if twice := Normalize(once); twice != once {
		t.Fatalf("got %q after second pass, want %q", twice, once)
	}
}
