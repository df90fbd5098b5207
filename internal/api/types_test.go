package api

import (
	"encoding/json"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"NÃO INICIADA", StatusNotStarted},
		{" em andamento ", StatusInProgress},
		{"EM ATENDIMENTO", StatusInProgress},
		{"em atendimento", StatusInProgress},
		{"CONCLUÍDA", StatusDone},
		{"pausada", Status("PAUSADA")},
	}
	for _, tt := range tests {
		if got := NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if !StatusInService.Known() {
		t.Fatalf("alias should be known")
	}
	if Status("PAUSADA").Known() {
		t.Fatalf("PAUSADA should not be known")
	}
}

func TestUserResponse_DecodesBothShapes(t *testing.T) {
	var single UserResponse
	if err := json.Unmarshal([]byte(`{"id":4,"name":"Ana"}`), &single); err != nil {
		t.Fatalf("Unmarshal single: %v", err)
	}
	if got := single.Users(); len(got) != 1 || got[0].ID != 4 {
		t.Fatalf("single Users() = %#v, want one id=4", got)
	}

	var many UserResponse
	if err := json.Unmarshal([]byte(`[{"id":1},{"id":2}]`), &many); err != nil {
		t.Fatalf("Unmarshal collection: %v", err)
	}
	if got := many.Users(); len(got) != 2 || got[1].ID != 2 {
		t.Fatalf("collection Users() = %#v, want two", got)
	}

	var empty UserResponse
	if err := json.Unmarshal([]byte(`null`), &empty); err != nil {
		t.Fatalf("Unmarshal null: %v", err)
	}
	if got := empty.Users(); got == nil || len(got) != 0 {
		t.Fatalf("null Users() = %#v, want empty non-nil", got)
	}

	var bad UserResponse
	if err := json.Unmarshal([]byte(`"nope"`), &bad); err == nil {
		t.Fatalf("Unmarshal string should fail")
	}
}

func TestFilters_QueryOmitsEmptyFields(t *testing.T) {
	q := Filters{TeamID: "3"}.Query()
	if q.Encode() != "teamId=3" {
		t.Fatalf("Query = %q, want teamId=3", q.Encode())
	}
	if !(Filters{NumeroArt: " "}).Empty() {
		t.Fatalf("whitespace-only filters should be empty")
	}
	if (Filters{}).String() != "none" {
		t.Fatalf("String of empty filters = %q", Filters{}.String())
	}
}

func TestFilters_Match(t *testing.T) {
	target := Target{ID: 1, NumeroArt: "72624476", Status: StatusInService, TeamID: int64p(3)}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"empty", Filters{}, true},
		{"art substring", Filters{NumeroArt: "2624"}, true},
		{"art mismatch", Filters{NumeroArt: "999"}, false},
		{"team", Filters{TeamID: "3"}, true},
		{"other team", Filters{TeamID: "4"}, false},
		{"status alias", Filters{Status: "EM ANDAMENTO"}, true},
		{"status mismatch", Filters{Status: "CONCLUÍDA"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filters.Match(target); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}

	unassigned := Target{ID: 2}
	if (Filters{TeamID: "3"}).Match(unassigned) {
		t.Fatalf("unassigned target should not match team filter")
	}
}

func TestTarget_NullTeamDecodesUnassigned(t *testing.T) {
	var target Target
	if err := json.Unmarshal([]byte(`{"id":5,"teamId":null,"status":"NÃO INICIADA"}`), &target); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if target.Assigned() {
		t.Fatalf("null teamId should be unassigned")
	}
	if target.NormalizedStatus() != StatusNotStarted {
		t.Fatalf("status = %q", target.NormalizedStatus())
	}
}

func TestErrorBodyMessage(t *testing.T) {
	var eb errorBody
	_ = json.Unmarshal([]byte(`{"message":["a","b"]}`), &eb)
	if eb.message() != "a; b" {
		t.Fatalf("message = %q, want a; b", eb.message())
	}
}

func TestParseTimeLayouts(t *testing.T) {
	if parseTime("2025-12-13T10:11:12Z").IsZero() {
		t.Fatalf("parseTime should parse RFC3339")
	}
	if !parseTime("garbage").IsZero() {
		t.Fatalf("parseTime should return zero on garbage")
	}
}
