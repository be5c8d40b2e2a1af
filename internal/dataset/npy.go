package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
)

// NPY v1.0 codec for 2-D float32 matrices, compatible with numpy.save /
// numpy.load. Only little-endian f4 in C order is supported; that is the
// only layout the embedding pipeline ever produced.

var npyMagic = []byte("\x93NUMPY")

// writeNPY writes vectors as a (rows, dim) <f4 array. Rows must all share
// the same dimension.
func writeNPY(path string, vectors [][]float32) error {
	rows := len(vectors)
	dim := 0
	if rows > 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("ragged embedding matrix: row %d has %d values, expected %d", i, len(v), dim)
		}
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, dim)
	// Total header (magic + version + length + dict + padding) must be a
	// multiple of 64, terminated by \n.
	unpadded := len(npyMagic) + 2 + 2 + len(header) + 1
	padding := (64 - unpadded%64) % 64
	header = header + strings.Repeat(" ", padding) + "\n"

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create npy file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 0, len(npyMagic)+4+len(header)+rows*dim*4)
	buf = append(buf, npyMagic...)
	buf = append(buf, 0x01, 0x00) // version 1.0
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)

	for _, v := range vectors {
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
	}

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("failed to write npy file: %w", err)
	}
	return nil
}

// readNPY loads a (rows, dim) <f4 array written by writeNPY or numpy.save.
func readNPY(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) < len(npyMagic)+4 || string(data[:len(npyMagic)]) != string(npyMagic) {
		return nil, fmt.Errorf("%s: not an npy file", path)
	}
	major := data[len(npyMagic)]
	if major != 1 {
		return nil, fmt.Errorf("%s: unsupported npy version %d", path, major)
	}

	headerLen := int(binary.LittleEndian.Uint16(data[len(npyMagic)+2:]))
	headerStart := len(npyMagic) + 4
	if len(data) < headerStart+headerLen {
		return nil, fmt.Errorf("%s: truncated npy header", path)
	}
	header := string(data[headerStart : headerStart+headerLen])

	if !strings.Contains(header, "'<f4'") {
		return nil, fmt.Errorf("%s: unsupported dtype in header %q", path, header)
	}
	if strings.Contains(header, "'fortran_order': True") {
		return nil, fmt.Errorf("%s: fortran order not supported", path)
	}

	rows, dim, err := parseShape(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	body := data[headerStart+headerLen:]
	if len(body) < rows*dim*4 {
		return nil, fmt.Errorf("%s: truncated npy body: have %d bytes, need %d", path, len(body), rows*dim*4)
	}

	vectors := make([][]float32, rows)
	off := 0
	for i := range vectors {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
			off += 4
		}
		vectors[i] = row
	}
	return vectors, nil
}

// parseShape extracts (rows, dim) from an npy header dict.
func parseShape(header string) (int, int, error) {
	start := strings.Index(header, "'shape':")
	if start == -1 {
		return 0, 0, fmt.Errorf("missing shape in header %q", header)
	}
	open := strings.IndexByte(header[start:], '(')
	closing := strings.IndexByte(header[start:], ')')
	if open == -1 || closing == -1 || closing < open {
		return 0, 0, fmt.Errorf("malformed shape in header %q", header)
	}

	parts := strings.Split(header[start+open+1:start+closing], ",")
	dims := make([]int, 0, 2)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return 0, 0, fmt.Errorf("malformed shape dimension %q", p)
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("expected 2-d array, got %d dimensions", len(dims))
	}
	return dims[0], dims[1], nil
}
