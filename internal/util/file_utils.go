// Package util provides URL, path and payload helpers.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/geoyee/globetile/internal/model"
)

// GetFileExtension returns the payload extension for a URL template.
func GetFileExtension(urlTemplate, outputType string) string {
	if outputType != "auto" && outputType != "" {
		return "." + strings.TrimPrefix(outputType, ".")
	}

	url := urlTemplate
	if idx := strings.Index(url, "?"); idx != -1 {
		url = url[:idx]
	}

	ext := filepath.Ext(url)
	if ext == "" || strings.ContainsAny(ext, "{}") {
		ext = ".png"
	}

	return ext
}

// IsImagePayload reports whether data starts with a PNG, JPEG or WebP signature.
func IsImagePayload(data []byte) bool {
	if len(data) < 8 {
		return false
	}

	// PNG
	if data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return true
	}

	// JPEG
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return true
	}

	// WEBP
	return len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' &&
		data[3] == 'F' && data[8] == 'W' && data[9] == 'E' && data[10] == 'B' &&
		data[11] == 'P'
}

// ValidateFileFormat accepts image payloads outright and otherwise rejects
// error pages and payloads outside the size bounds.
func ValidateFileFormat(data []byte, minFileSize, maxFileSize int64) bool {
	if len(data) < 8 {
		return false
	}
	if IsImagePayload(data) {
		return true
	}

	content := strings.ToLower(string(data[:min(100, len(data))]))
	if strings.Contains(content, "error") ||
		strings.Contains(content, "not found") ||
		strings.Contains(content, "forbidden") ||
		strings.Contains(content, "<html") {
		return false
	}

	return int64(len(data)) >= minFileSize && int64(len(data)) <= maxFileSize
}

// GetTileURL expands a URL template for a tile. Supported placeholders are
// {z}/{level}, {x}/{col}, {y}/{row}, {-y} (row flipped within the level),
// {bbox} (minLon,minLat,maxLon,maxLat) and {quadkey}.
func GetTileURL(urlTemplate string, tile model.Tile) string {
	s := tile.Sector
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(tile.Level),
		"{level}", strconv.Itoa(tile.Level),
		"{x}", strconv.Itoa(tile.Column),
		"{col}", strconv.Itoa(tile.Column),
		"{y}", strconv.Itoa(tile.Row),
		"{row}", strconv.Itoa(tile.Row),
		"{-y}", strconv.Itoa((1<<tile.Level)-tile.Row-1),
		"{bbox}", fmt.Sprintf("%s,%s,%s,%s", formatDeg(s.MinLon), formatDeg(s.MinLat), formatDeg(s.MaxLon), formatDeg(s.MaxLat)),
		"{quadkey}", Quadkey(tile.Level, tile.Row, tile.Column),
	)
	return r.Replace(urlTemplate)
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Quadkey returns the Bing-style quadkey of an XYZ tile (row 0 at the north).
func Quadkey(level, row, col int) string {
	var b strings.Builder
	for i := level; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if col&mask != 0 {
			digit++
		}
		if row&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

// GetSavePath returns the file path of a stored tile payload.
func GetSavePath(saveDir, format string, level, row, col int, ext string) (string, error) {
	var path string

	switch format {
	case "zxy", "":
		path = filepath.Join(saveDir, strconv.Itoa(level),
			strconv.Itoa(col), strconv.Itoa(row))
	case "xyz":
		path = filepath.Join(saveDir, strconv.Itoa(col),
			strconv.Itoa(row), strconv.Itoa(level))
	case "z/x/y":
		path = filepath.Join(saveDir, fmt.Sprintf("%d/%d/%d", level, col, row))
	case "zrc":
		path = filepath.Join(saveDir, strconv.Itoa(level),
			strconv.Itoa(row), fmt.Sprintf("%d_%d", row, col))
	default:
		return "", fmt.Errorf("unknown save format %q", format)
	}

	if !strings.HasSuffix(path, ext) {
		path += ext
	}

	return path, nil
}

// EnsureDirExists creates dir and its parents.
func EnsureDirExists(dir string) error {
	return os.MkdirAll(dir, 0755)
}
