package fitssource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fits2hdf5/internal/models"
	"fits2hdf5/pkg/converter"
)

const fitsBlock = 2880

// card renders one 80-character header card with a value.
func card(key, value string) string {
	return fmt.Sprintf("%-8s= %-70s", key, value)
}

// bareCard renders a card without the value indicator, as used by END and
// commentary keys.
func bareCard(text string) string {
	return fmt.Sprintf("%-80s", text)
}

// writeFITS assembles a single-HDU FITS file from header cards and raw data
// bytes, padding both sections to the 2880-byte block size.
func writeFITS(t *testing.T, cards []string, data []byte) string {
	t.Helper()

	var header []byte
	for _, c := range cards {
		if len(c) != 80 {
			t.Fatalf("card %q is %d bytes, want 80", c, len(c))
		}
		header = append(header, c...)
	}
	header = append(header, bareCard("END")...)
	for len(header)%fitsBlock != 0 {
		header = append(header, ' ')
	}

	body := append([]byte{}, data...)
	for len(body)%fitsBlock != 0 {
		body = append(body, 0)
	}

	path := filepath.Join(t.TempDir(), "test.fits")
	if err := os.WriteFile(path, append(header, body...), 0o644); err != nil {
		t.Fatalf("writing FITS file: %v", err)
	}
	return path
}

func floatBytes(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func TestOpenCube(t *testing.T) {
	values := make([]float32, 12)
	for i := range values {
		values[i] = float32(i + 1)
	}
	path := writeFITS(t, []string{
		card("SIMPLE", "T"),
		card("BITPIX", "-32"),
		card("NAXIS", "3"),
		card("NAXIS1", "3"),
		card("NAXIS2", "2"),
		card("NAXIS3", "2"),
		card("OBJECT", "'M31'"),
		card("BUNIT", "'Jy/beam'"),
		bareCard("COMMENT  written by the test suite"),
	}, floatBytes(values))

	source, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	want := models.CubeDims{Rank: 3, Stokes: 1, Depth: 2, Height: 2, Width: 3}
	if diff := cmp.Diff(want, source.Dims()); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}

	plane, err := source.ReadPlane(0)
	if err != nil {
		t.Fatalf("ReadPlane failed: %v", err)
	}
	if diff := cmp.Diff(values, plane); diff != "" {
		t.Errorf("plane mismatch (-want +got):\n%s", diff)
	}

	header := source.Header()
	byKey := make(map[string]string, len(header))
	keys := make([]string, 0, len(header))
	for _, entry := range header {
		byKey[entry.Key] = entry.Value
		keys = append(keys, entry.Key)
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("header keys not sorted: %v", keys)
	}
	if byKey["OBJECT"] != "M31" {
		t.Errorf("OBJECT = %q", byKey["OBJECT"])
	}
	if byKey["BUNIT"] != "Jy/beam" {
		t.Errorf("BUNIT = %q", byKey["BUNIT"])
	}
	if byKey["SIMPLE"] != "T" {
		t.Errorf("SIMPLE = %q", byKey["SIMPLE"])
	}
	if byKey["NAXIS1"] != "3" {
		t.Errorf("NAXIS1 = %q", byKey["NAXIS1"])
	}
	for _, skipped := range []string{"COMMENT", "END", ""} {
		if _, ok := byKey[skipped]; ok {
			t.Errorf("key %q must not be forwarded", skipped)
		}
	}
}

func TestOpenFlatImage(t *testing.T) {
	path := writeFITS(t, []string{
		card("SIMPLE", "T"),
		card("BITPIX", "-32"),
		card("NAXIS", "2"),
		card("NAXIS1", "4"),
		card("NAXIS2", "3"),
	}, floatBytes(make([]float32, 12)))

	source, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	want := models.CubeDims{Rank: 2, Stokes: 1, Depth: 1, Height: 3, Width: 4}
	if diff := cmp.Diff(want, source.Dims()); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRejectsIntegerSamples(t *testing.T) {
	data := make([]byte, 2*6) // int16 samples
	path := writeFITS(t, []string{
		card("SIMPLE", "T"),
		card("BITPIX", "16"),
		card("NAXIS", "2"),
		card("NAXIS1", "3"),
		card("NAXIS2", "2"),
	}, data)

	_, err := Open(path)
	if !errors.Is(err, converter.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpenRejectsRankOne(t *testing.T) {
	path := writeFITS(t, []string{
		card("SIMPLE", "T"),
		card("BITPIX", "-32"),
		card("NAXIS", "1"),
		card("NAXIS1", "8"),
	}, floatBytes(make([]float32, 8)))

	_, err := Open(path)
	if !errors.Is(err, converter.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.fits"))
	if !errors.Is(err, converter.ErrSourceRead) {
		t.Fatalf("err = %v, want ErrSourceRead", err)
	}
}

func TestReadPlaneOutOfRange(t *testing.T) {
	path := writeFITS(t, []string{
		card("SIMPLE", "T"),
		card("BITPIX", "-32"),
		card("NAXIS", "2"),
		card("NAXIS1", "2"),
		card("NAXIS2", "2"),
	}, floatBytes(make([]float32, 4)))

	source, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	if _, err := source.ReadPlane(1); !errors.Is(err, converter.ErrSourceRead) {
		t.Fatalf("err = %v, want ErrSourceRead", err)
	}
}
