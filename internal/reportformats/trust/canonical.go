// Package trust computes the signable form of a report format bundle and
// records the outcome of verifying it.
package trust

import (
	"bytes"
	"strconv"

	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
)

// Bundle is everything that goes into the canonical string of a format.
type Bundle struct {
	// ID is the feed identity: the original feed id when the format was
	// re-imported under a new id, otherwise the format id.
	ID          string
	Extension   string
	ContentType string
	Predefined  bool
	Files       []assets.File
	// Params in declaration order, with options loaded.
	Params []models.Param
}

// CanonicalString returns the bytes that are signed for a bundle. Files are
// taken in bytewise name order and unbounded params omit their min and max,
// so signer and verifier agree on the exact sequence.
func CanonicalString(b Bundle) []byte {
	var buf bytes.Buffer
	buf.WriteString(b.ID)
	buf.WriteString(b.Extension)
	buf.WriteString(b.ContentType)
	if b.Predefined {
		buf.WriteByte('1')
	} else {
		buf.WriteByte('0')
	}

	files := append([]assets.File(nil), b.Files...)
	assets.SortFiles(files)
	for _, f := range files {
		buf.WriteString(f.Name)
		buf.Write(f.Content)
	}

	for i := range b.Params {
		p := &b.Params[i]
		buf.WriteString(p.Name)
		buf.WriteString(p.Type.String())
		if p.HasMin() {
			buf.WriteString(strconv.FormatInt(p.Min, 10))
		}
		if p.HasMax() {
			buf.WriteString(strconv.FormatInt(p.Max, 10))
		}
		buf.WriteString(p.Regex)
		buf.WriteString(p.Fallback)
		for _, o := range p.Options {
			buf.WriteString(o)
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
