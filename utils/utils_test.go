package utils

import (
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Go", "backend ", "go", "", " API"})
	want := []string{"go", "backend", "api"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := NormalizeTags(nil); len(got) != 0 || got == nil {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?limit=500&skip=-3", nil)
	skip, limit := ParsePagination(r, 20, 100)
	if skip != 0 || limit != 100 {
		t.Fatalf("expected 0/100, got %d/%d", skip, limit)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	if _, limit := ParsePagination(r, 20, 100); limit != 20 {
		t.Fatalf("expected default 20, got %d", limit)
	}
}

func TestSortedUnique(t *testing.T) {
	got := SortedUnique([]string{"b", "", "a", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}
