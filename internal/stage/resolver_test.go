package stage

import (
	"math/rand"
	"testing"
)

func TestResolveEarliest_Empty(t *testing.T) {
	if got := ResolveEarliest(nil); got != nil {
		t.Errorf("ResolveEarliest(nil) = %q, want nil", *got)
	}
	if got := ResolveEarliest([]Candidate{}); got != nil {
		t.Errorf("ResolveEarliest(empty) = %q, want nil", *got)
	}
}

func TestResolveEarliest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{
			name:       "single",
			candidates: []Candidate{{TaskID: "t1", StageID: "weld", Sequence: 3}},
			want:       "weld",
		},
		{
			name: "lowest sequence wins",
			candidates: []Candidate{
				{TaskID: "t1", StageID: "weld", Sequence: 3},
				{TaskID: "t2", StageID: "cut", Sequence: 1},
				{TaskID: "t3", StageID: "bend", Sequence: 2},
			},
			want: "cut",
		},
		{
			name: "same stage on several tasks",
			candidates: []Candidate{
				{TaskID: "t9", StageID: "bend", Sequence: 2},
				{TaskID: "t1", StageID: "bend", Sequence: 2},
			},
			want: "bend",
		},
		{
			name: "sequence tie broken by stage id",
			candidates: []Candidate{
				{TaskID: "t1", StageID: "stage-b", Sequence: 5},
				{TaskID: "t2", StageID: "stage-a", Sequence: 5},
			},
			want: "stage-a",
		},
		{
			name: "negative and zero sequences",
			candidates: []Candidate{
				{TaskID: "t1", StageID: "zero", Sequence: 0},
				{TaskID: "t2", StageID: "neg", Sequence: -1},
			},
			want: "neg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEarliest(tt.candidates)
			if got == nil {
				t.Fatal("ResolveEarliest() = nil")
			}
			if *got != tt.want {
				t.Errorf("ResolveEarliest() = %q, want %q", *got, tt.want)
			}
		})
	}
}

func TestResolveEarliest_OrderIndependent(t *testing.T) {
	base := []Candidate{
		{TaskID: "a", StageID: "s3", Sequence: 3},
		{TaskID: "b", StageID: "s2x", Sequence: 2},
		{TaskID: "c", StageID: "s2", Sequence: 2},
		{TaskID: "d", StageID: "s4", Sequence: 4},
		{TaskID: "e", StageID: "s2", Sequence: 2},
	}
	want := *ResolveEarliest(base)
	if want != "s2" {
		t.Fatalf("baseline = %q, want s2", want)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		shuffled := append([]Candidate(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := *ResolveEarliest(shuffled); got != want {
			t.Fatalf("permutation %d: ResolveEarliest() = %q, want %q (%v)", i, got, want, shuffled)
		}
	}
}

func TestResolveEarliest_DoesNotMutateInput(t *testing.T) {
	in := []Candidate{
		{TaskID: "a", StageID: "s2", Sequence: 2},
		{TaskID: "b", StageID: "s1", Sequence: 1},
	}
	ResolveEarliest(in)
	if in[0].StageID != "s2" || in[1].StageID != "s1" {
		t.Errorf("input reordered: %v", in)
	}
}

func TestEqual(t *testing.T) {
	a, a2, b := "x", "x", "y"
	tests := []struct {
		l, r *string
		want bool
	}{
		{nil, nil, true},
		{&a, nil, false},
		{nil, &a, false},
		{&a, &a2, true},
		{&a, &b, false},
	}
	for _, tt := range tests {
		if got := Equal(tt.l, tt.r); got != tt.want {
			t.Errorf("Equal(%v, %v) = %v, want %v", tt.l, tt.r, got, tt.want)
		}
	}
}
