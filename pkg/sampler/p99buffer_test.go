package sampler

import "testing"

func TestP99Buffer(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		samples []int64
		want    int64
		wantOK  bool
		wantLen int
	}{
		{name: "empty", size: 10, wantOK: false},
		{name: "single", size: 10, samples: []int64{42}, want: 42, wantOK: true, wantLen: 1},
		{name: "hundred", size: 1000, samples: seq(1, 100), want: 100, wantOK: true, wantLen: 100},
		{name: "thousand", size: 1000, samples: seq(1, 1000), want: 991, wantOK: true, wantLen: 1000},
		{name: "overwrites oldest", size: 5, samples: []int64{900, 1, 2, 3, 4, 5}, want: 5, wantOK: true, wantLen: 5},
		{name: "zero size holds one", size: 0, samples: []int64{7, 8}, want: 8, wantOK: true, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewP99Buffer(tt.size)
			for _, s := range tt.samples {
				b.Add(s)
			}
			got, ok := b.P99()
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("P99() = %d, %v, want %d, %v", got, ok, tt.want, tt.wantOK)
			}
			if b.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", b.Len(), tt.wantLen)
			}
		})
	}
}

func TestP99Buffer_Reset(t *testing.T) {
	b := NewP99Buffer(3)
	b.Add(10)
	b.Add(20)
	b.Reset()

	if _, ok := b.P99(); ok {
		t.Error("P99() after Reset reported samples")
	}
	b.Add(5)
	if got, _ := b.P99(); got != 5 {
		t.Errorf("P99() = %d, want 5", got)
	}
}

func seq(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}
