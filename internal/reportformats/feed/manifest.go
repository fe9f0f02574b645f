package feed

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/paramtypes"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// mxj keeps attributes under their name with this prefix and the character
// data of mixed elements under textKey.
const (
	attrPrefix = "-"
	textKey    = "#text"
)

// Manifest is the content of a report_format.xml file.
type Manifest struct {
	Name        string
	Summary     string
	Description string
	Extension   string
	ContentType string
	Params      []ManifestParam
}

type ManifestParam struct {
	Name     string
	Type     types.ParamType
	Value    string
	Fallback string
	Min      int64
	Max      int64
	Options  []string
}

// ReadManifest parses the manifest of the format directory dir.
func ReadManifest(dir string) (*Manifest, apperrors.Error) {
	path := filepath.Join(dir, assets.Manifest)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrManifestUnreadable.MsgErr("failed to read "+path, err)
	}
	m, aerr := ParseManifest(data)
	if aerr != nil {
		return nil, aerr.Msg(aerr.Error() + " in " + path)
	}
	return m, nil
}

// ParseManifest decodes a manifest document. The first missing required
// element fails the whole manifest.
func ParseManifest(data []byte) (*Manifest, apperrors.Error) {
	doc, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, ErrManifestUnreadable.MsgErr("failed to parse manifest", err)
	}
	if len(doc) != 1 {
		return nil, ErrManifestInvalid.Msg("manifest must have a single root element")
	}
	var root any
	for _, v := range doc {
		root = v
	}

	m := &Manifest{}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"name", &m.Name},
		{"summary", &m.Summary},
		{"description", &m.Description},
		{"extension", &m.Extension},
		{"content_type", &m.ContentType},
	} {
		node, ok := child(root, f.name)
		if !ok {
			return nil, ErrManifestInvalid.Msg("missing " + f.name)
		}
		*f.dst = text(node)
	}

	for _, node := range children(root, "param") {
		p, err := parseParam(node)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, *p)
	}
	return m, nil
}

func parseParam(node any) (*ManifestParam, apperrors.Error) {
	p := &ManifestParam{Min: types.NoMin, Max: types.NoMax}

	n, ok := child(node, "name")
	if !ok {
		return nil, ErrManifestInvalid.Msg("param missing name")
	}
	p.Name = text(n)

	n, ok = child(node, "default")
	if !ok {
		return nil, ErrManifestInvalid.Msg("param " + p.Name + " missing default")
	}
	p.Fallback = text(n)

	typeNode, ok := child(node, "type")
	if !ok {
		return nil, ErrManifestInvalid.Msg("param " + p.Name + " missing type")
	}
	typeName := text(typeNode)
	p.Type = types.ParamTypeFromName(typeName)
	if p.Type == types.ParamTypeError {
		return nil, ErrManifestInvalid.Msg("param " + p.Name + " has unknown type " + typeName)
	}

	valueNode, ok := child(node, "value")
	if !ok {
		return nil, ErrManifestInvalid.Msg("param " + p.Name + " missing value")
	}

	if p.Type == types.ParamTypeReportFormatList {
		ref, ok := child(valueNode, "report_format")
		if !ok {
			return nil, ErrManifestInvalid.Msg("param " + p.Name + " missing report format")
		}
		id, ok := attr(ref, "id")
		if !ok {
			return nil, ErrManifestInvalid.Msg("report format of param " + p.Name + " missing id")
		}
		p.Value = id
		return p, nil
	}

	if b, ok := child(typeNode, "min"); ok && text(b) != "" {
		min, err := paramtypes.ParseMin(text(b))
		if err != nil {
			return nil, ErrManifestInvalid.MsgErr("failed to parse min of param "+p.Name, err)
		}
		p.Min = min
	}
	if b, ok := child(typeNode, "max"); ok && text(b) != "" {
		max, err := paramtypes.ParseMax(text(b))
		if err != nil {
			return nil, ErrManifestInvalid.MsgErr("failed to parse max of param "+p.Name, err)
		}
		p.Max = max
	}
	if p.Type == types.ParamTypeSelection {
		opts, ok := child(typeNode, "options")
		if !ok {
			return nil, ErrManifestInvalid.Msg("selection param " + p.Name + " missing options")
		}
		for _, o := range children(opts, "option") {
			p.Options = append(p.Options, text(o))
		}
	}
	p.Value = text(valueNode)
	return p, nil
}

// child returns the first element called name below node.
func child(node any, name string) (any, bool) {
	m, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	if !ok {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, false
		}
		return list[0], true
	}
	return v, true
}

// children returns every element called name below node in document order.
func children(node any, name string) []any {
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	switch v := m[name].(type) {
	case nil:
		if _, present := m[name]; present {
			return []any{nil}
		}
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

func attr(node any, name string) (string, bool) {
	m, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[attrPrefix+name].(string)
	return v, ok
}

func text(node any) string {
	switch v := node.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if t, ok := v[textKey].(string); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}
