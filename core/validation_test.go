package core

import (
	"errors"
	"math"
	"testing"
)

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name       string
		vector     []float32
		dimensions int
		wantErr    error
	}{
		{
			name:       "valid vector",
			vector:     []float32{0.1, 0.2, 0.3},
			dimensions: 3,
			wantErr:    nil,
		},
		{
			name:       "dimensions not declared",
			vector:     []float32{0.1, 0.2},
			dimensions: 0,
			wantErr:    nil,
		},
		{
			name:       "empty vector",
			vector:     nil,
			dimensions: 3,
			wantErr:    ErrEmptyVector,
		},
		{
			name:       "wrong length",
			vector:     []float32{0.1, 0.2},
			dimensions: 3,
			wantErr:    ErrDimensionMismatch,
		},
		{
			name:       "NaN component",
			vector:     []float32{0.1, float32(math.NaN()), 0.3},
			dimensions: 3,
			wantErr:    ErrNonFiniteVector,
		},
		{
			name:       "infinite component",
			vector:     []float32{float32(math.Inf(-1)), 0.2, 0.3},
			dimensions: 3,
			wantErr:    ErrNonFiniteVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vector, tt.dimensions)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateVector() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Errorf("ValidateVector() error = nil, want %v", tt.wantErr)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateVector() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	wrapped := errors.Join(errors.New("connection reset"), ErrTransientStorage)

	if !IsTransient(wrapped) {
		t.Error("IsTransient() = false for wrapped transient storage error")
	}
	if !IsTransient(ErrEmbeddingTransient) {
		t.Error("IsTransient() = false for transient embedding error")
	}
	if IsTransient(ErrPermanentStorage) {
		t.Error("IsTransient() = true for permanent storage error")
	}
	if !IsPermanent(ErrEmbeddingPermanent) {
		t.Error("IsPermanent() = false for permanent embedding error")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("IsPermanent() = true for unclassified error")
	}
}
