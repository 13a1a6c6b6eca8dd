package util_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/ccdnoise/util"
)

func ExampleIntSliceToCSV() {
	fmt.Println(util.IntSliceToCSV([]int{1200, 1700, 1600, 2100}))
	// Output: 1200,1700,1600,2100
}

func ExampleParseIntCSV() {
	is, _ := util.ParseIntCSV("1200, 1700,1600 ,2100")
	fmt.Println(is)
	// Output: [1200 1700 1600 2100]
}

func TestIntSliceToCSV(t *testing.T) {
	inp := []int{1, 2, 3}
	expected := "1,2,3"
	out := util.IntSliceToCSV(inp)
	if expected != out {
		t.Errorf("expected %s got %s", expected, out)
	}
}

func TestParseIntCSVRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "1,,2", "1,a,3", "1.5"} {
		if _, err := util.ParseIntCSV(s); err == nil {
			t.Errorf("expected error parsing %q", s)
		}
	}
}

func TestParseFrameListSkipsBlanks(t *testing.T) {
	inp := "bias_001.fit\n\n   \n  bias_002.fit  \n# comment\nbias_003.fit"
	out, err := util.ParseFrameList(strings.NewReader(inp))
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"bias_001.fit", "bias_002.fit", "bias_003.fit"}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadFrameList(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "bias.lst")
	err := os.WriteFile(fn, []byte("a.fits\r\nb.fits\r\n"), 0666)
	if err != nil {
		t.Fatal(err)
	}
	out, err := util.ReadFrameList(fn)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.fits", "b.fits"}, out); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadFrameListMissing(t *testing.T) {
	_, err := util.ReadFrameList(filepath.Join(t.TempDir(), "nope.lst"))
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
