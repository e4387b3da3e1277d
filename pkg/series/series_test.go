package series

import (
	"errors"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		series  *Series
		wantErr error
	}{
		{
			name:   "valid series",
			series: New("cpu", Point{T: 0, V: 1}, Point{T: 1, V: 2}),
		},
		{
			name:    "empty name",
			series:  New("", Point{T: 0, V: 1}),
			wantErr: ErrEmptyName,
		},
		{
			name:    "nan value",
			series:  New("cpu", Point{T: 0, V: math.NaN()}),
			wantErr: ErrNotFinite,
		},
		{
			name:    "unordered timestamps",
			series:  New("cpu", Point{T: 2, V: 1}, Point{T: 1, V: 2}),
			wantErr: ErrUnordered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.series.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClone(t *testing.T) {
	s := New("cpu", Point{T: 0, V: 1})
	c := s.Clone()
	c.Points[0].V = 99

	if s.Points[0].V != 1 {
		t.Error("clone shares backing array with original")
	}
	if c.Name != s.Name || c.Len() != s.Len() {
		t.Error("clone lost metadata")
	}
}
