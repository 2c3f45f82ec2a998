package cmd

import (
	"testing"

	_ "github.com/sergev/floppycore/imagecodec/adf"
	_ "github.com/sergev/floppycore/imagecodec/hfe"
	_ "github.com/sergev/floppycore/imagecodec/rawimg"
)

func TestCodecForFilenameUsesExtension(t *testing.T) {
	cases := map[string]string{
		"disk.hfe":    "hfe",
		"disk.ADF":    "adf",
		"disk.img":    "img",
		"disk.ima":    "img",
		"disk.unknown": "hfe",
	}
	for filename, want := range cases {
		codec, err := codecForFilename(filename)
		if err != nil {
			t.Fatalf("codecForFilename(%q): %v", filename, err)
		}
		if codec.Name != want {
			t.Errorf("codecForFilename(%q) = %q, want %q", filename, codec.Name, want)
		}
	}
}
