package cmd

import "os"

// createFile opens filename for writing, truncating any existing content,
// suitable as the io.WriterAt an imagecodec.Writer writes through.
func createFile(filename string) (*os.File, error) {
	return os.Create(filename)
}

// openFile opens filename for reading, suitable as the io.ReaderAt an
// imagecodec.Reader reads through.
func openFile(filename string) (*os.File, error) {
	return os.Open(filename)
}
