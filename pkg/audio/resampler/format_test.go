package resampler

import "testing"

func TestFormat_channels(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{
			name:   "zero is mono",
			format: Format{SampleRate: 44100},
			want:   1,
		},
		{
			name:   "stereo",
			format: Format{SampleRate: 48000, Channels: 2},
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.channels(); got != tt.want {
				t.Errorf("Format.channels() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat_Downmix(t *testing.T) {
	stereo := Format{SampleRate: 48000, Channels: 2}
	got := stereo.Downmix([]float32{1, 0, 0.5, 0.5, -1, 1, 0.25})
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	mono := Format{SampleRate: 16000}
	in := []float32{1, 2, 3}
	if out := mono.Downmix(in); &out[0] != &in[0] {
		t.Error("mono Downmix should return its input")
	}
}
