package core

import "testing"

func TestResolvePoolSize(t *testing.T) {
	tests := []struct {
		name     string
		sizing   PoolSizing
		hardware int
		want     int
	}{
		{"auto max uses hardware", PoolSizing{Min: 1, Max: AutoThreads}, 8, 8},
		{"max below hardware", PoolSizing{Min: 1, Max: 2}, 8, 2},
		{"max above hardware", PoolSizing{Min: 1, Max: 16}, 4, 4},
		{"min wins over max", PoolSizing{Min: 6, Max: 2}, 8, 6},
		{"min above hardware", PoolSizing{Min: 12, Max: AutoThreads}, 4, 12},
		{"auto min", PoolSizing{Min: AutoThreads, Max: 2}, 4, 4},
		{"zero bounds", PoolSizing{Min: 0, Max: 0}, 4, 1},
		{"unknown hardware", PoolSizing{Min: 1, Max: AutoThreads}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePoolSize(tt.sizing, tt.hardware); got != tt.want {
				t.Errorf("ResolvePoolSize(%+v, %d) = %d, want %d", tt.sizing, tt.hardware, got, tt.want)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Regular.Max != AutoThreads {
		t.Errorf("Regular.Max = %d, want AutoThreads", opts.Regular.Max)
	}
	if opts.HardwareThreads < 1 {
		t.Errorf("HardwareThreads = %d, want >= 1", opts.HardwareThreads)
	}
	if opts.PollInterval <= 0 {
		t.Errorf("PollInterval = %v, want > 0", opts.PollInterval)
	}
}
