package backend

import (
	"net/http"
	"reflect"
	"testing"
)

func TestMergeEnvHeaderWinsOnCollision(t *testing.T) {
	base := []string{"API_KEY=base-value", "OTHER=kept"}
	headers := http.Header{}
	headers.Set("X-Api-Key", "header-value")

	mapping := HeaderMapping{"X-Api-Key": "API_KEY"}

	got := MergeEnv(base, headers, mapping)
	want := []string{"API_KEY=header-value", "OTHER=kept"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeEnvSkipsAbsentHeaders(t *testing.T) {
	base := []string{"TOKEN=fallback"}
	headers := http.Header{} // no X-Token header set

	mapping := HeaderMapping{"X-Token": "TOKEN"}

	got := MergeEnv(base, headers, mapping)
	want := []string{"TOKEN=fallback"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeEnvAddsNewKeysFromHeaders(t *testing.T) {
	base := []string{"EXISTING=1"}
	headers := http.Header{}
	headers.Set("X-Tenant-Id", "acme")

	mapping := HeaderMapping{"X-Tenant-Id": "TENANT_ID"}

	got := MergeEnv(base, headers, mapping)
	want := []string{"EXISTING=1", "TENANT_ID=acme"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{Static: "static", Dynamic: "dynamic", Mode(99): "unknown"}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}
