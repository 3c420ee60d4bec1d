package pitch

import (
	"math"
	"strconv"
)

var noteNames = [12]string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

// MIDI returns the nearest MIDI note number for hz, with A4 = 440 Hz = 69.
func MIDI(hz float64) int {
	return int(math.Round(69 + 12*math.Log2(hz/440)))
}

// Note returns the nearest equal-tempered note name with its octave, using
// flats for accidentals ("A4", "Db5"). It returns "" for non-positive or
// non-finite input.
func Note(hz float64) string {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return ""
	}
	m := MIDI(hz)
	pc := ((m % 12) + 12) % 12
	octave := floorDiv(m, 12) - 1
	return noteNames[pc] + strconv.Itoa(octave)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Deviation returns how far hz is from its nearest note, in cents within
// [-50, 50]. It returns NaN where Note returns "".
func Deviation(hz float64) float64 {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return math.NaN()
	}
	return 1200*math.Log2(hz/440) + 6900 - 100*float64(MIDI(hz))
}
