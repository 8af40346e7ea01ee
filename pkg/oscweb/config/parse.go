package config

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ConfigFileSuffixes are the file name suffixes loaded from directories.
var ConfigFileSuffixes = []string{".hcl", ".oscweb"}

// GetBlocks extracts the top-level blocks of every body. Unknown blocks and
// top-level attributes are errors.
func GetBlocks(bodies []hcl.Body) (hcl.Blocks, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	var blocks hcl.Blocks

	for _, body := range bodies {
		content, contentDiags := body.Content(configSchema)
		diags = diags.Extend(contentDiags)
		if content != nil {
			blocks = append(blocks, content.Blocks...)
		}
	}

	return blocks, diags
}

// ParseConfigFiles parses every source. A source is a file or directory path,
// a []byte of HCL text, or any fs.FS such as an embed.FS. All sources are
// parsed even when some fail, so every problem is reported at once.
func ParseConfigFiles(sources ...any) ([]hcl.Body, hcl.Diagnostics) {
	p := &sourceParser{parser: hclparse.NewParser()}

	for _, source := range sources {
		switch v := source.(type) {
		case string:
			p.parsePath(v)
		case []byte:
			p.add(p.parser.ParseHCL(v, fmt.Sprintf("<bytes@%p>", v)))
		case fs.FS:
			p.parseFS(v, "")
		default:
			p.fail("Invalid source type", fmt.Sprintf("Invalid source type: %T", v))
		}
	}

	return p.bodies, p.diags
}

type sourceParser struct {
	parser *hclparse.Parser
	bodies []hcl.Body
	diags  hcl.Diagnostics
}

func (p *sourceParser) add(file *hcl.File, diags hcl.Diagnostics) {
	p.diags = p.diags.Extend(diags)
	if file != nil {
		p.bodies = append(p.bodies, file.Body)
	}
}

func (p *sourceParser) fail(summary, detail string) {
	p.diags = p.diags.Append(&hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
	})
}

func (p *sourceParser) parsePath(name string) {
	info, err := os.Stat(name)
	switch {
	case err != nil:
		p.fail("Failed to read configuration", err.Error())
	case info.IsDir():
		p.parseFS(os.DirFS(name), name)
	default:
		p.add(p.parser.ParseHCLFile(name))
	}
}

// parseFS loads every configuration file below fsys in lexical order. Files
// are named relative to root in diagnostics.
func (p *sourceParser) parseFS(fsys fs.FS, root string) {
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			p.fail("Failed to read configuration", err.Error())
			return nil
		}
		if d.IsDir() || !slices.Contains(ConfigFileSuffixes, path.Ext(name)) {
			return nil
		}

		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			p.fail("Failed to read configuration", err.Error())
			return nil
		}

		p.add(p.parser.ParseHCL(src, filepath.Join(root, filepath.FromSlash(name))))
		return nil
	})
	if err != nil {
		p.fail("Failed to walk directory", fmt.Sprintf("Error walking %s: %s", root, err))
	}
}
