package render

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

var sample = domain.AggregateResult{
	{Window: "All Time", Additions: 1234567, Deletions: 8901, Total: 1243468, WeeklyMean: 12.5, WeeklyMedian: 10, PeakWeek: 4000},
	{Window: "Last Year", Additions: 1000, Deletions: 1, Total: 1001},
	{Window: "Last Month"},
	{Window: "Last Week"},
}

func TestSVG(t *testing.T) {
	out, err := SVG(sample, "")
	require.NoError(t, err)
	svg := string(out)

	assert.Contains(t, svg, DefaultTitle)
	assert.Contains(t, svg, "1,243,468 lines")
	assert.Contains(t, svg, "+1,234,567")
	assert.Contains(t, svg, "-8,901")
	assert.Contains(t, svg, `height="275"`)
	for _, w := range domain.Windows {
		assert.Contains(t, svg, ">"+w.Name+"<")
	}
	assert.Less(t, strings.Index(svg, "All Time"), strings.Index(svg, "Last Week"))

	var doc struct{ XMLName xml.Name }
	require.NoError(t, xml.Unmarshal(out, &doc), "card must be well-formed")
	assert.Equal(t, "svg", doc.XMLName.Local)
}

func TestSVG_EscapesTitleAndFillsMissingWindows(t *testing.T) {
	out, err := SVG(nil, `Tom & Jerry <code>`)
	require.NoError(t, err)

	assert.Contains(t, string(out), "Tom &amp; Jerry &lt;code&gt;")
	assert.Equal(t, 4, strings.Count(string(out), ">0 lines<"))
}

func TestWriteSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "loc-stats.svg")

	require.NoError(t, WriteSVG(path, sample, "Mine"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ">Mine<")
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, sample)

	out := buf.String()
	assert.Contains(t, out, "All Time")
	assert.Contains(t, out, "+1,234,567")
	assert.Contains(t, out, "12.5")
	assert.Contains(t, out, "4,000")
}

func TestLine(t *testing.T) {
	assert.Equal(t, "All Time:    +1,234,567 / -8,901 = 1,243,468 lines", Line(sample[0]))
}
