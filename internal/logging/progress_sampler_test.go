package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "transcribe") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset() // should not panic
}

func TestProgressSamplerStageChange(t *testing.T) {
	s := NewProgressSampler(5)

	if !s.ShouldLog(0, "transcribe") {
		t.Error("first stage should log")
	}
	if s.ShouldLog(0, "transcribe") {
		t.Error("same stage and percent should not log again")
	}
	if !s.ShouldLog(0, "translate") {
		t.Error("different stage should log")
	}
	if s.lastStage != "translate" {
		t.Errorf("lastStage = %q, want translate", s.lastStage)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(0, "transcribe") {
		t.Error("first event should log")
	}
	if s.ShouldLog(4, "transcribe") {
		t.Error("within the same bucket should not log")
	}
	if !s.ShouldLog(12, "transcribe") {
		t.Error("crossing a bucket boundary should log")
	}
	if !s.ShouldLog(100, "transcribe") {
		t.Error("completion should log")
	}
	if s.ShouldLog(100, "transcribe") {
		t.Error("repeated completion should not log")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "transcribe")
	s.Reset()
	if !s.ShouldLog(50, "transcribe") {
		t.Error("after Reset the same event should log again")
	}
}
