package site

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/use-agent/appraise/history"
	"gopkg.in/yaml.v3"
)

// Registry resolves listing URLs to site profiles.
type Registry struct {
	profiles []*Profile
}

// NewRegistry validates and registers profiles. Earlier profiles win when
// several domain tokens match one URL.
func NewRegistry(profiles ...*Profile) (*Registry, error) {
	r := &Registry{}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.profiles = append(r.profiles, p)
	}
	return r, nil
}

// Default returns a registry holding the built-in Avito and Cian profiles.
func Default() *Registry {
	r, err := NewRegistry(Avito(), Cian())
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the first profile whose domain token occurs in url.
func (r *Registry) Resolve(url string) (*Profile, bool) {
	url = strings.ToLower(url)
	for _, p := range r.profiles {
		if strings.Contains(url, strings.ToLower(p.Domain)) {
			return p, true
		}
	}
	return nil, false
}

// Profiles returns the registered profiles in resolution order.
func (r *Registry) Profiles() []*Profile {
	return append([]*Profile(nil), r.profiles...)
}

// ── YAML overrides ──────────────────────────────────────────────────

type overrideFile struct {
	Sites []yaml.Node `yaml:"sites"`
}

// LoadFile reads a profiles file and applies it over base. See Apply.
func LoadFile(path string, base *Registry) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site profiles: %w", err)
	}
	return Apply(data, base)
}

// Apply decodes a YAML document of the form
//
//	sites:
//	  - name: cian
//	    history:
//	      capture_delta: true
//
// Entries naming a profile of base are decoded onto a copy of it, so only
// the keys present change. Unknown names register new profiles, which
// resolve before the built-ins.
func Apply(data []byte, base *Registry) (*Registry, error) {
	var doc overrideFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse site profiles: %w", err)
	}

	var existing []*Profile
	if base != nil {
		existing = base.Profiles()
	}
	var added []*Profile

	for i := range doc.Sites {
		node := &doc.Sites[i]
		var head struct {
			Name string `yaml:"name"`
		}
		if err := node.Decode(&head); err != nil {
			return nil, fmt.Errorf("site profiles entry %d: %w", i, err)
		}
		if head.Name == "" {
			return nil, fmt.Errorf("site profiles entry %d: name is required", i)
		}

		idx := indexOf(existing, head.Name)
		p := &Profile{Zoom: 1}
		if idx >= 0 {
			p = existing[idx].Clone()
		}
		if err := node.Decode(p); err != nil {
			return nil, fmt.Errorf("site %s: %w", head.Name, err)
		}
		if p.Grammar.Day == nil {
			p.Grammar = history.Russian
		}
		if idx >= 0 {
			existing[idx] = p
		} else {
			added = append(added, p)
		}
	}

	return NewRegistry(append(added, existing...)...)
}

func indexOf(profiles []*Profile, name string) int {
	for i, p := range profiles {
		if p.Name == name {
			return i
		}
	}
	return -1
}
