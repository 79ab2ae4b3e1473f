package device

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type zstdReadCloser struct {
	*zstd.Decoder
	file *os.File
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// OpenContent opens fileName for reading, transparently decompressing zstd.
func OpenContent(fileName string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Clean(fileName))
	if err != nil {
		return nil, err
	}

	magic := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(file, magic)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	if n < len(zstdMagic) || !bytes.Equal(magic, zstdMagic) {
		return file, nil
	}

	decoder, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return zstdReadCloser{Decoder: decoder, file: file}, nil
}

// ReadContent returns the whole, decompressed content of fileName.
func ReadContent(fileName string) ([]byte, error) {
	reader, err := OpenContent(fileName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// PeekContent returns up to n leading bytes of the decompressed content.
func PeekContent(fileName string, n int) ([]byte, error) {
	reader, err := OpenContent(fileName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	head := make([]byte, n)
	read, err := io.ReadFull(reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return head[:read], nil
}
