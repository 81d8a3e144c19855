// Package entities backs the import resolver with stored posts, terms,
// users and attachments.
package entities

import (
	"context"
	"strings"
	"unicode"
)

// Post is a content record resolvable by id, slug, title or meta value.
type Post struct {
	ID     int64
	Type   string
	Status string
	Slug   string
	Title  string
	Meta   map[string]string
}

// Term is a taxonomy entry.
type Term struct {
	ID       int64
	Taxonomy string
	Slug     string
	Name     string
}

// User is an account resolvable by id, email, login or slug.
type User struct {
	ID    int64
	Email string
	Login string
	Slug  string
}

// Attachment is a stored media file. SourceURL is where it was fetched
// from, URL is where it is served.
type Attachment struct {
	ID        int64
	SourceURL string
	URL       string
	Filename  string
}

// AttachmentRecorder records a sideloaded file.
type AttachmentRecorder interface {
	CreateAttachment(ctx context.Context, a Attachment) (int64, error)
}

// Slugify lowercases s and joins runs of letters and digits with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
