package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Encode serializes a manifest back to canonical TOML. Registry
// declarations render as bare spec strings and everything else as inline
// tables, so parse(Encode(parse(m))) is stable for manifests written in
// canonical dependency forms.
//
// TOML basic strings share Go's escape syntax for everything sk emits, so
// strconv.Quote produces valid TOML string literals.
func Encode(m *Manifest) []byte {
	var b strings.Builder

	if m.Package != nil {
		b.WriteString("[package]\n")
		writeKV(&b, "name", m.Package.Name)
		if m.Package.Version != "" {
			writeKV(&b, "version", m.Package.Version)
		}
		if m.Package.Description != "" {
			writeKV(&b, "description", m.Package.Description)
		}
		b.WriteString("\n")
	}

	if len(m.Agents) > 0 {
		b.WriteString("[agents]\n")
		ids := make([]string, 0, len(m.Agents))
		for id := range m.Agents {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "%s = %t\n", encodeKey(id), m.Agents[id])
		}
		b.WriteString("\n")
	}

	if len(m.Dependencies) > 0 {
		b.WriteString("[dependencies]\n")
		for _, alias := range m.Aliases() {
			fmt.Fprintf(&b, "%s = %s\n", encodeKey(alias), encodeDecl(m.Dependencies[alias].Decl))
		}
		b.WriteString("\n")
	}

	// Only emit the export table when it deviates from the default.
	if !m.AutoDiscover.Enabled {
		b.WriteString("[exports.auto_discover]\nskills = false\n")
	} else if m.AutoDiscover.Dir != DefaultSkillsDir {
		b.WriteString("[exports.auto_discover]\n")
		writeKV(&b, "skills", m.AutoDiscover.Dir)
	}

	return []byte(b.String())
}

// encodeDecl renders a declaration as its canonical TOML value.
func encodeDecl(decl Declaration) string {
	switch d := decl.(type) {
	case Registry:
		return strconv.Quote(d.Source())
	case Github:
		pairs := []string{pair("gh", d.Repo)}
		pairs = appendRef(pairs, d.Ref)
		if d.Path != "" {
			pairs = append(pairs, pair("path", d.Path))
		}
		return inlineTable(pairs)
	case Git:
		pairs := []string{pair("git", d.URL)}
		pairs = appendRef(pairs, d.Ref)
		if d.Path != "" {
			pairs = append(pairs, pair("path", d.Path))
		}
		return inlineTable(pairs)
	case Local:
		return inlineTable([]string{pair("path", d.Path)})
	case ClaudePlugin:
		return inlineTable([]string{
			pair("type", "claude-plugin"),
			pair("plugin", d.Plugin),
			pair("marketplace", d.Marketplace),
		})
	default:
		// The sum is closed; a new kind here is a programming error.
		panic(fmt.Sprintf("manifest: unhandled declaration kind %q", decl.Kind()))
	}
}

func appendRef(pairs []string, ref GitRef) []string {
	if ref.IsZero() {
		return pairs
	}
	return append(pairs, pair(string(ref.Kind), ref.Value))
}

func pair(key, value string) string {
	return encodeKey(key) + " = " + strconv.Quote(value)
}

func inlineTable(pairs []string) string {
	return "{ " + strings.Join(pairs, ", ") + " }"
}

// encodeKey quotes a TOML key when it is not a bare key.
func encodeKey(key string) string {
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return strconv.Quote(key)
		}
	}
	if key == "" {
		return `""`
	}
	return key
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s = %s\n", encodeKey(key), strconv.Quote(value))
}
