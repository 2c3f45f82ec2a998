package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergev/floppycore/imagecodec"
)

// extToCodec maps a destination filename's extension to the registered
// codec name that writes it, for the read verb picking an output format.
var extToCodec = map[string]string{
	".hfe": "hfe",
	".adf": "adf",
	".img": "img",
	".ima": "img",
}

// codecForFilename resolves the codec a filename's extension implies,
// defaulting to HFE when the extension is unrecognized.
func codecForFilename(filename string) (imagecodec.Codec, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	name, ok := extToCodec[ext]
	if !ok {
		name = "hfe"
	}
	codec, ok := imagecodec.ByName(name)
	if !ok {
		return imagecodec.Codec{}, fmt.Errorf("no %q codec registered", name)
	}
	return codec, nil
}
