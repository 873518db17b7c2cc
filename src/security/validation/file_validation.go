package validation

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
)

// allowedDetectedTypes are the sniffed content types accepted for statements.
var allowedDetectedTypes = map[string]bool{
	"text/plain":               true,
	"text/csv":                 true,
	"application/csv":          true,
	"application/octet-stream": true, // strict parsing follows
}

// ValidateInputFile checks extension, size and content signature of a
// statement before it is parsed.
func ValidateInputFile(path string, sec config.SecurityConfig) error {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := false
	for _, a := range sec.AllowedExtensions {
		if ext == strings.ToLower(a) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: extension %q not allowed (allowed: %s)", models.ErrInvalidFile, ext, strings.Join(sec.AllowedExtensions, ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidFile, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", models.ErrInvalidFile, path)
	}
	if limit := sec.MaxFileSizeBytes(); info.Size() > limit {
		return fmt.Errorf("%w: %s is %s, limit is %s", models.ErrInvalidFile, path,
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(limit)))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidFile, err)
	}
	defer f.Close()
	if _, err := ValidateFileContentByMagicBytes(f); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidFile, err)
	}
	return nil
}

// ValidateFileContentByMagicBytes checks the actual file content signature (magic bytes).
// It returns the detected content type and an error if validation fails.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}

	// Rewind so the parser can read the whole file.
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", seekErr)
	}

	detectedContentType := http.DetectContentType(buffer[:n])
	detectedContentType = strings.ToLower(strings.Split(detectedContentType, ";")[0])

	if !allowedDetectedTypes[detectedContentType] {
		logger.L.Warn("Disallowed detected file content type (magic bytes)", "detectedContentType", detectedContentType)
		return detectedContentType, fmt.Errorf("detected file content type '%s' is not consistent with a CSV file", detectedContentType)
	}

	logger.L.Debug("File content type (magic bytes) validated", "detectedContentType", detectedContentType)
	return detectedContentType, nil
}
