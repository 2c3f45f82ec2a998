package kryoflux

import "testing"

func oobBlock(oobType byte, payload []byte) []byte {
	b := []byte{0x0d, oobType, byte(len(payload)), byte(len(payload) >> 8)}
	return append(b, payload...)
}

func indexPayload(streamPos, sampleCounter, indexCounter uint32) []byte {
	put := func(v uint32) []byte {
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	var p []byte
	p = append(p, put(streamPos)...)
	p = append(p, put(sampleCounter)...)
	p = append(p, put(indexCounter)...)
	return p
}

func TestDecodePulsesFindsIndexBlocks(t *testing.T) {
	var data []byte
	data = append(data, oobBlock(0x02, indexPayload(10, 66, 1000))...)
	data = append(data, 0x20, 0x30) // two Flux1 samples
	data = append(data, oobBlock(0x02, indexPayload(len(data)+4, 66, 2000))...)
	data = append(data, oobBlock(0x0d, nil)...)

	pulses := decodePulses(data)
	if len(pulses) != 2 {
		t.Fatalf("got %d index pulses, want 2", len(pulses))
	}
	if pulses[0].IndexCounter != 1000 || pulses[1].IndexCounter != 2000 {
		t.Fatalf("unexpected index counters: %+v", pulses)
	}
}

func TestDecodeFluxAccumulatesTicks(t *testing.T) {
	data := []byte{0x20, 0x30, 0x40}
	transitions, err := decodeFlux(data, 0, uint32(len(data)))
	if err != nil {
		t.Fatalf("decodeFlux: %v", err)
	}
	if len(transitions) != 3 {
		t.Fatalf("got %d transitions, want 3", len(transitions))
	}
	for i := 1; i < len(transitions); i++ {
		if transitions[i] <= transitions[i-1] {
			t.Fatalf("transitions must be strictly increasing: %v", transitions)
		}
	}
}

func TestAbsoluteToIntervalsProducesPositiveGaps(t *testing.T) {
	absolute := []uint64{100, 250, 600}
	intervals := absoluteToIntervals(absolute)
	want := []uint64{100, 150, 350}
	for i := range want {
		if intervals[i] != want[i] {
			t.Fatalf("interval %d = %d, want %d", i, intervals[i], want[i])
		}
	}
}

func TestStreamHasEndDetectsTerminator(t *testing.T) {
	incomplete := []byte{0x20, 0x30}
	if streamHasEnd(incomplete) {
		t.Fatal("stream without an OOB end marker should not report done")
	}
	complete := append(incomplete, oobBlock(0x0d, nil)...)
	if !streamHasEnd(complete) {
		t.Fatal("stream with an OOB end marker should report done")
	}
}
