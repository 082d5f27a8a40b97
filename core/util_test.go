package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanString(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		lower bool
		want  string
	}{
		{name: "trims whitespace", s: "  Asha Gurung \n", want: "Asha Gurung"},
		{name: "lowers on demand", s: " Asha@Test.Test ", lower: true, want: "asha@test.test"},
		{name: "empty", s: "   ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanString(tt.s, tt.lower); got != tt.want {
				t.Errorf("CleanString() = %q; want %q", got, tt.want)
			}
		})
	}
}

// Getwd must resolve the project root even though go-test runs each package
// from its own directory.
func TestGetwd(t *testing.T) {
	root := Getwd()
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Errorf("Getwd() = %q; no go.mod found there: %v", root, err)
	}
}
