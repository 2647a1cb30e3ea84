package main

import (
	"testing"

	"github.com/aerodrop/aerodrop/internal/transport"
)

func TestParseClassOverrideLAN(t *testing.T) {
	class, err := parseClassOverride("lan")
	if err != nil {
		t.Fatalf("parseClassOverride: %v", err)
	}
	if class == nil || *class != transport.ClassLAN {
		t.Fatalf("class = %v, want ClassLAN", class)
	}
}

func TestParseClassOverrideWAN(t *testing.T) {
	class, err := parseClassOverride("wan")
	if err != nil {
		t.Fatalf("parseClassOverride: %v", err)
	}
	if class == nil || *class != transport.ClassWAN {
		t.Fatalf("class = %v, want ClassWAN", class)
	}
}

func TestParseClassOverrideEmptyMeansAutoDetect(t *testing.T) {
	class, err := parseClassOverride("")
	if err != nil {
		t.Fatalf("parseClassOverride: %v", err)
	}
	if class != nil {
		t.Fatalf("class = %v, want nil", class)
	}
}

func TestParseClassOverrideUnknownIsError(t *testing.T) {
	class, err := parseClassOverride("satellite")
	if err == nil {
		t.Fatal("expected error for unknown class")
	}
	if class != nil {
		t.Fatalf("class = %v, want nil on error", class)
	}
}
