package manifest

import "testing"

func TestToPackagePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"models", "models"},
		{"my-app", "my_app"},
		{"Acme.Tools", "acme/tools"},
		{"", ""},
	}

	for _, tc := range tests {
		got := ToPackagePath(tc.input)
		if got != tc.want {
			t.Errorf("ToPackagePath(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsReservedPackage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"java", true},
		{"java/lang", true},
		{"javax/crypto", true},
		{"javelin", true},
		{"acme/java", false},
		{"javalike", false},
		{"demo", false},
	}

	for _, tc := range tests {
		got := IsReservedPackage(tc.name)
		if got != tc.want {
			t.Errorf("IsReservedPackage(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
