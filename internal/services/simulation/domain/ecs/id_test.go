package ecs

import "testing"

func TestID_Less(t *testing.T) {
	tests := []struct {
		name string
		a, b ID
		want bool
	}{
		{"lower step wins", ID{High: 1, Low: 5}, ID{High: 2, Low: 0}, true},
		{"same step lower counter wins", ID{High: 4, Low: 1}, ID{High: 4, Low: 2}, true},
		{"equal is not less", ID{High: 4, Low: 2}, ID{High: 4, Low: 2}, false},
		{"higher step is not less", ID{High: 5, Low: 0}, ID{High: 4, Low: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestID_IsZero(t *testing.T) {
	if !Zero.IsZero() {
		t.Fatal("Zero value should report IsZero")
	}
	if (ID{High: 0, Low: 1}).IsZero() {
		t.Fatal("nonzero low should not report IsZero")
	}
}
