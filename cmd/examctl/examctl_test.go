package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/service"
)

func TestTokenScope(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		perms     []string
		wantType  service.TokenType
		wantPerms int
		wantErr   bool
	}{
		{"student drops permissions", "student", []string{"exams:write"}, service.TokenTypeStudent, 0, false},
		{"teacher defaults to all", "teacher", nil, service.TokenTypeTeacher, 3, false},
		{"teacher keeps explicit", "teacher", []string{"submissions:read"}, service.TokenTypeTeacher, 1, false},
		{"unknown type", "admin", nil, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, perms, err := tokenScope(tt.kind, tt.perms)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if typ != tt.wantType || len(perms) != tt.wantPerms {
				t.Errorf("got (%q, %v), want (%q, %d perms)", typ, perms, tt.wantType, tt.wantPerms)
			}
		})
	}
}

func runClassifyWith(t *testing.T, input string, args ...string) model.IntegritySummary {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"classify"}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("classify: %v (%s)", err, out.String())
	}
	var got model.IntegritySummary
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	return got
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		want  bool
	}{
		{"at threshold", `{"tab_switches":3}`, nil, false},
		{"above threshold", `{"tab_switches":4}`, nil, true},
		{"custom threshold", `{"tab_switches":4}`, []string{"--max-tab-switches", "5"}, false},
		{"fullscreen exits", `{"fullscreen_exits":3}`, nil, true},
		{"events raise counters", `{"tab_switches":0,"suspicious_activities":[
			{"type":"tab_switch"},{"type":"tab_switch"},{"type":"tab_switch"},{"type":"tab_switch"}]}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runClassifyWith(t, tt.input, tt.args...)
			if got.IsSuspicious != tt.want {
				t.Errorf("is_suspicious = %v, want %v (%+v)", got.IsSuspicious, tt.want, got)
			}
		})
	}
}

func TestClassifyRejectsMalformedInput(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetIn(strings.NewReader("{"))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"classify"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
}
