package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

const maxFileNameLength = 120

// PathParams provide the identifiers used to compose upload object keys.
type PathParams struct {
	Prefix   string
	UploadID string
	FileName string
}

// BuildUploadPath returns "{prefix}/{uploadID}/{fileName}" after validating every segment. The file
// name is reduced to a safe base name first.
func BuildUploadPath(params PathParams) (string, error) {
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	if prefix == "" {
		return "", fmt.Errorf("storage: prefix is required")
	}
	for _, segment := range strings.Split(prefix, "/") {
		if _, err := validateSegment("prefix", segment); err != nil {
			return "", err
		}
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateSegment("fileName", SafeFileName(params.FileName))
	if err != nil {
		return "", err
	}
	return prefix + "/" + uploadID + "/" + fileName, nil
}

// SafeFileName keeps the base name of a client supplied file name and replaces anything outside
// letters, digits, dot, dash and underscore. Extensions are lowercased.
func SafeFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" {
		name = ""
	}
	ext := strings.ToLower(path.Ext(name))
	stem := strings.TrimSuffix(name, path.Ext(name))
	if !validExtension(ext) {
		ext, stem = "", name
	}

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-.")
	if cleaned == "" {
		cleaned = "image"
	}
	if len(cleaned)+len(ext) > maxFileNameLength {
		cleaned = cleaned[:maxFileNameLength-len(ext)]
	}
	return cleaned + ext
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
