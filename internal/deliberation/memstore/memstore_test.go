package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/linnemanlabs/boardroom/internal/council"
)

func result(id, text string, mode council.Mode) *council.AnalysisResult {
	return &council.AnalysisResult{
		ID:            id,
		DecisionText:  text,
		Mode:          mode,
		FinalVerdict:  council.Approve,
		AgentAnalyses: []council.AgentAnalysis{{AgentRole: council.Finance, Assumptions: []string{"a"}}},
	}
}

func TestStore_PutAndList(t *testing.T) {
	t.Parallel()

	s := New(0)
	ctx := context.Background()
	for i := range 3 {
		if err := s.Put(ctx, result(fmt.Sprintf("r-%d", i), "text", council.ModeEnterprise)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, r := range got {
		if want := fmt.Sprintf("r-%d", i); r.ID != want {
			t.Errorf("got[%d].ID = %q, want %q", i, r.ID, want)
		}
	}

	got, _ = s.List(ctx, 2)
	if len(got) != 2 || got[0].ID != "r-1" || got[1].ID != "r-2" {
		t.Errorf("List(2) = %v", ids(got))
	}
}

func TestStore_Capacity(t *testing.T) {
	t.Parallel()

	s := New(20)
	ctx := context.Background()
	for i := range 25 {
		_ = s.Put(ctx, result(fmt.Sprintf("r-%02d", i), fmt.Sprintf("decision %d", i), council.ModeEnterprise))
	}

	got, _ := s.List(ctx, 100)
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
	if got[0].ID != "r-05" || got[19].ID != "r-24" {
		t.Errorf("kept %s..%s, want r-05..r-24", got[0].ID, got[19].ID)
	}
	if _, ok, _ := s.FindByDecision(ctx, "decision 0", council.ModeEnterprise); ok {
		t.Error("evicted decision should not be found")
	}
}

func TestStore_FindByDecision(t *testing.T) {
	t.Parallel()

	s := New(0)
	ctx := context.Background()
	_ = s.Put(ctx, result("old", "Open an office in Berlin", council.ModeEnterprise))
	_ = s.Put(ctx, result("startup", "Open an office in Berlin", council.ModeStartup))
	_ = s.Put(ctx, result("new", "open an office in berlin ", council.ModeEnterprise))

	tests := []struct {
		name   string
		text   string
		mode   council.Mode
		wantID string
	}{
		{"newest match wins", "  OPEN AN OFFICE IN BERLIN", council.ModeEnterprise, "new"},
		{"mode is part of the key", "Open an office in Berlin", council.ModeStartup, "startup"},
		{"different text", "Open an office in Paris", council.ModeEnterprise, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := s.FindByDecision(ctx, tt.text, tt.mode)
			if err != nil {
				t.Fatalf("FindByDecision: %v", err)
			}
			if tt.wantID == "" {
				if ok {
					t.Errorf("found %q, want none", got.ID)
				}
				return
			}
			if !ok || got.ID != tt.wantID {
				t.Errorf("got %v (ok=%v), want %q", got, ok, tt.wantID)
			}
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New(0)
	ctx := context.Background()
	r := result("r-1", "text", council.ModeEnterprise)
	_ = s.Put(ctx, r)
	r.AgentAnalyses[0].Assumptions[0] = "mutated"

	got, _ := s.List(ctx, 0)
	got[0].DecisionText = "changed"

	again, _ := s.List(ctx, 0)
	if again[0].DecisionText != "text" {
		t.Errorf("DecisionText = %q, store was mutated through List", again[0].DecisionText)
	}
	if again[0].AgentAnalyses[0].Assumptions[0] != "a" {
		t.Error("store was mutated through the Put argument")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New(0)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			_ = s.Put(ctx, result(fmt.Sprintf("c-%d", i), "same", council.ModeEnterprise))
			_, _, _ = s.FindByDecision(ctx, "same", council.ModeEnterprise)
			_, _ = s.List(ctx, 5)
		})
	}
	wg.Wait()

	got, _ := s.List(ctx, 0)
	if len(got) != 20 {
		t.Errorf("len = %d, want 20", len(got))
	}
}

func ids(rs []*council.AnalysisResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
