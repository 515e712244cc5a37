// Package questions loads the interview question corpus.
package questions

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var embeddedCorpus []byte

// ErrUnknownVariant is returned for a variant the corpus does not define.
var ErrUnknownVariant = errors.New("unknown interview variant")

// Corpus is the set of background questions plus one main battery per variant.
type Corpus struct {
	Background []string            `yaml:"background" json:"backgroundQuestions"`
	Variants   map[string][]string `yaml:"variants" json:"-"`
}

// Battery is the question list for one variant.
type Battery struct {
	Variant    string   `json:"mode"`
	Questions  []string `json:"questions"`
	Background []string `json:"backgroundQuestions"`
	Main       []string `json:"mainQuestions"`
}

// Default returns the corpus compiled into the binary.
func Default() (*Corpus, error) {
	return Parse(embeddedCorpus)
}

// Load reads a corpus from a YAML file. An empty path yields the embedded corpus.
func Load(path string) (*Corpus, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question corpus: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML corpus.
func Parse(data []byte) (*Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse question corpus: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every variant has at least one non-blank question.
func (c *Corpus) Validate() error {
	if len(c.Variants) == 0 {
		return errors.New("question corpus defines no variants")
	}
	for _, q := range c.Background {
		if strings.TrimSpace(q) == "" {
			return errors.New("question corpus has a blank background question")
		}
	}
	for name, qs := range c.Variants {
		if len(qs) == 0 {
			return fmt.Errorf("variant %q has no questions", name)
		}
		for _, q := range qs {
			if strings.TrimSpace(q) == "" {
				return fmt.Errorf("variant %q has a blank question", name)
			}
		}
	}
	return nil
}

// Battery returns background plus main questions for a variant.
func (c *Corpus) Battery(variant string) (Battery, error) {
	main, ok := c.Variants[variant]
	if !ok {
		return Battery{}, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	all := make([]string, 0, len(c.Background)+len(main))
	all = append(all, c.Background...)
	all = append(all, main...)
	return Battery{
		Variant:    variant,
		Questions:  all,
		Background: append([]string(nil), c.Background...),
		Main:       append([]string(nil), main...),
	}, nil
}

// HasVariant reports whether the corpus defines variant.
func (c *Corpus) HasVariant(variant string) bool {
	_, ok := c.Variants[variant]
	return ok
}

// VariantNames returns the defined variants in sorted order.
func (c *Corpus) VariantNames() []string {
	names := make([]string, 0, len(c.Variants))
	for name := range c.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LeadingBackground counts how many leading entries of qs are background questions.
func (c *Corpus) LeadingBackground(qs []string) int {
	bg := make(map[string]struct{}, len(c.Background))
	for _, q := range c.Background {
		bg[strings.TrimSpace(q)] = struct{}{}
	}
	n := 0
	for _, q := range qs {
		if _, ok := bg[strings.TrimSpace(q)]; !ok {
			break
		}
		n++
	}
	return n
}
