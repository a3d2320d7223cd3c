package provider

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"google.golang.org/api/googleapi"
)

// readImage reads an absolute file path and returns its bytes alongside a
// detected MIME type. The Gemini provider's inline-image path uses the raw
// bytes directly; chat-completions goes through encodeImageDataURL, which
// calls readImage and wraps the result in a data URL string.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// extractGoogleAPIStatus pulls the HTTP status code out of a
// *googleapi.Error, the shape the Gemini SDK wraps upstream HTTP failures
// in.
func extractGoogleAPIStatus(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}
