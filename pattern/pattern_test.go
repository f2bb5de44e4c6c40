package pattern

import (
	"testing"

	"github.com/go-test/deep"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		slots   []int
		wantErr error
	}{
		{"empty", nil, ErrEmpty},
		{"zero slot", []int{0, 500}, ErrOutOfRange},
		{"over mtu", []int{500, 2000}, ErrOutOfRange},
		{"not sorted", []int{1000, 500}, ErrNotSorted},
		{"ok", []int{500, 1000, 1400}, nil},
		{"ok with duplicates", []int{300, 300, 600}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.slots)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("New(%v) = %v, want nil", tt.slots, err)
			}
			if tt.wantErr != nil && err == nil {
				t.Fatalf("New(%v) = nil, want error matching %v", tt.slots, tt.wantErr)
			}
		})
	}
}

func TestAverageLengthAndPPS(t *testing.T) {
	tbl, err := New([]int{500, 1000, 1400})
	if err != nil {
		t.Fatal(err)
	}
	want := (500.0+1000.0+1400.0)/3.0 + 100.0
	if got := tbl.AverageLength(); got != want {
		t.Fatalf("AverageLength() = %v, want %v", got, want)
	}
	rate := 10.0 // Mbit/s
	wantPPS := rate * 1e6 / 8 / want
	if got := tbl.PacketsPerSecond(rate); got != wantPPS {
		t.Fatalf("PacketsPerSecond(%v) = %v, want %v", rate, got, wantPPS)
	}
}

func TestClassifySlot(t *testing.T) {
	tbl, err := New([]int{500, 1000, 1400})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		length int
		want   int
	}{
		{400, 0},
		{500, 0},
		{501, 1},
		{1400, 2},
		{1401, 3}, // drop sentinel == Len()
	}
	for _, c := range cases {
		if got := tbl.ClassifySlot(c.length); got != c.want {
			t.Errorf("ClassifySlot(%d) = %d, want %d", c.length, got, c.want)
		}
	}
}

func TestPushStateVectorSingletons(t *testing.T) {
	tbl, err := New([]int{500, 1000, 1400})
	if err != nil {
		t.Fatal(err)
	}
	psv := tbl.PushStateVector()
	want := []GroupState{{0, 1}, {1, 2}, {2, 3}}
	if diff := deep.Equal(psv, want); diff != nil {
		t.Errorf("PushStateVector() diff: %v", diff)
	}
}

func TestPushStateVectorStateGroup(t *testing.T) {
	tbl, err := New([]int{300, 300, 600})
	if err != nil {
		t.Fatal(err)
	}
	psv := tbl.PushStateVector()
	want := []GroupState{{0, 2}, {0, 2}, {2, 3}}
	if diff := deep.Equal(psv, want); diff != nil {
		t.Errorf("PushStateVector() diff: %v", diff)
	}
}

func TestParseCSV(t *testing.T) {
	slots, err := ParseCSV("500, 1000 ,1400")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{500, 1000, 1400}
	if diff := deep.Equal(slots, want); diff != nil {
		t.Errorf("ParseCSV() diff: %v", diff)
	}

	if _, err := ParseCSV("500,abc"); err == nil {
		t.Fatal("ParseCSV() with non-numeric slot = nil error, want error")
	}
}

func TestSortedIndicesIsIdentity(t *testing.T) {
	tbl, err := New([]int{300, 300, 600, 1400})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 2, 3}
	if diff := deep.Equal(tbl.SortedIndices(), want); diff != nil {
		t.Errorf("SortedIndices() diff: %v", diff)
	}
}
