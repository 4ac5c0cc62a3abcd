package search

import (
	"fmt"
	"reflect"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		raw      string
		included []string
		excluded []string
	}{
		{"beach -crowded", []string{"beach"}, []string{"crowded"}},
		{"  sunny   beach  ", []string{"sunny", "beach"}, nil},
		{"café! -noisy, -bar", []string{"caf"}, []string{"noisy", "bar"}},
		{"- -- ---x", nil, []string{"x"}},
		{"park park -park", []string{"park"}, []string{"park"}},
		{"new-york", []string{"newyork"}, nil},
		{"", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q := Compile(tt.raw)
			if !reflect.DeepEqual(q.Included, tt.included) {
				t.Errorf("Included = %#v, want %#v", q.Included, tt.included)
			}
			if !reflect.DeepEqual(q.Excluded, tt.excluded) {
				t.Errorf("Excluded = %#v, want %#v", q.Excluded, tt.excluded)
			}
		})
	}
}

func TestQuery_Text(t *testing.T) {
	q := Compile("beach sunset -crowded")
	if got, want := q.Text(), "-crowded beach sunset"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	if q.Empty() {
		t.Error("query with included terms should not be empty")
	}
	if !Compile("-crowded").Empty() {
		t.Error("exclusion-only query should be empty")
	}
}

func ExampleCompile() {
	q := Compile("beach -crowded")
	fmt.Println(q.Included, q.Excluded, q.Text())
	// Output:
	// [beach] [crowded] -crowded beach
}
