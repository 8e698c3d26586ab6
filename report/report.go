// Package report defines the story records exchanged with the report API and
// persisted by the local store.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Report is a user-submitted geotagged post. ID is the only lookup key.
type Report struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description string   `json:"description" yaml:"description"`
	PhotoURL    string   `json:"photoUrl,omitempty" yaml:"photoUrl,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	Lat         *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
}

// HasLocation reports whether both coordinates are set.
func (r Report) HasLocation() bool {
	return r.Lat != nil && r.Lon != nil
}

// Created parses CreatedAt. The zero time is returned when it is empty or
// malformed.
func (r Report) Created() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, r.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Summary returns the description cut to n runes, with an ellipsis when cut.
func (r Report) Summary(n int) string {
	runes := []rune(r.Description)
	if len(runes) <= n {
		return r.Description
	}
	return string(runes[:n]) + "..."
}

// ToDocument converts the report into the generic document shape used by the
// store package.
func (r Report) ToDocument() (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %q: %w", r.ID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode report %q: %w", r.ID, err)
	}
	return doc, nil
}

// FromDocument is the inverse of ToDocument.
func FromDocument(doc map[string]any) (Report, error) {
	var r Report
	b, err := json.Marshal(doc)
	if err != nil {
		return r, fmt.Errorf("decode report: %w", err)
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// Float returns a pointer to v, for building optional coordinates.
func Float(v float64) *float64 {
	return &v
}

// Draft is the input for creating a new report on the server.
type Draft struct {
	Description string
	Photo       io.Reader
	// PhotoName is the file name sent with the multipart photo part.
	PhotoName string
	// PhotoType defaults to image/jpeg.
	PhotoType string
	Lat       *float64
	Lon       *float64
}

// Validate checks the fields the server requires.
func (d Draft) Validate() error {
	if d.Description == "" {
		return errors.New("description is required")
	}
	if d.Photo == nil {
		return errors.New("photo is required")
	}
	return nil
}
