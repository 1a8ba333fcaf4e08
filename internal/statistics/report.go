package statistics

import (
	"fmt"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * 1024

	maxNameLength = 20
)

// Entry is one row of a compression report.
type Entry struct {
	Name           string
	OriginalSize   int64
	CompressedSize int64
	Failed         string // non-empty when the item failed in isolation mode
}

// CompressionRatio returns the percentage of bytes saved. A zero original
// size yields 0.
func CompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 0
	}
	return float64(originalSize-compressedSize) / float64(originalSize) * 100
}

// FormatRatio renders a ratio with two decimals and a percent sign.
func FormatRatio(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio)
}

// FormatBytes renders a byte count as B below 1 KiB, KB below 1 MiB and MB
// above. Negative counts (a result that grew) keep their sign.
func FormatBytes(bytes int64) string {
	sign := ""
	n := bytes
	if n < 0 {
		sign = "-"
		n = -n
	}
	switch {
	case n < kib:
		return fmt.Sprintf("%s%d B", sign, n)
	case n < mib:
		return fmt.Sprintf("%s%.2f KB", sign, float64(n)/kib)
	default:
		return fmt.Sprintf("%s%.2f MB", sign, float64(n)/mib)
	}
}

// SingleReport renders the markdown preview for one compressed image.
func SingleReport(e Entry, location string) string {
	ratio := CompressionRatio(e.OriginalSize, e.CompressedSize)

	var b strings.Builder
	b.WriteString("## Image Compression Results\n\n")
	fmt.Fprintf(&b, "- **Original Size**: %s\n", FormatBytes(e.OriginalSize))
	fmt.Fprintf(&b, "- **Compressed Size**: %s\n", FormatBytes(e.CompressedSize))
	fmt.Fprintf(&b, "- **Compression Ratio**: %s\n", FormatRatio(ratio))
	fmt.Fprintf(&b, "- **Space Saved**: %s\n", FormatBytes(e.OriginalSize-e.CompressedSize))
	if location != "" {
		fmt.Fprintf(&b, "\n**File Location**: %s", location)
	}
	return b.String()
}

// BatchTable renders the markdown table for a batch, ending with the total
// saved row.
func BatchTable(entries []Entry, totalSaved int64) string {
	var b strings.Builder
	b.WriteString("| Name | Original Size | Compressed Size | Compression Rate |\n")
	b.WriteString("|----------|--------|------------|--------|\n")

	for _, e := range entries {
		name := cell(truncate(e.Name, maxNameLength))
		if e.Failed != "" {
			fmt.Fprintf(&b, "| %s | %s | failed | %s |\n", name, FormatBytes(e.OriginalSize), cell(e.Failed))
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			name,
			FormatBytes(e.OriginalSize),
			FormatBytes(e.CompressedSize),
			FormatRatio(CompressionRatio(e.OriginalSize, e.CompressedSize)))
	}
	fmt.Fprintf(&b, "| Total Save: **%s** |\n", FormatBytes(totalSaved))

	return b.String()
}

// cell makes s safe inside a single table cell: pipes are escaped and line
// breaks collapse to spaces.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
