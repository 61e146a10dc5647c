package classfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source form of a class. A file may hold several documents separated by
// "---", one class each.
type yamlClass struct {
	Name       string       `yaml:"name"`
	Super      *string      `yaml:"super"`
	Interfaces []string     `yaml:"interfaces"`
	Flags      []string     `yaml:"flags"`
	Source     string       `yaml:"source"`
	Fields     []yamlField  `yaml:"fields"`
	Methods    []yamlMethod `yaml:"methods"`
}

type yamlField struct {
	Name       string    `yaml:"name"`
	Descriptor string    `yaml:"descriptor"`
	Flags      []string  `yaml:"flags"`
	Offset     *int      `yaml:"offset"`
	Value      yaml.Node `yaml:"value"`
}

type yamlMethod struct {
	Name       string   `yaml:"name"`
	Descriptor string   `yaml:"descriptor"`
	Flags      []string `yaml:"flags"`
	MaxStack   *int     `yaml:"max_stack"`
	MaxLocals  *int     `yaml:"max_locals"`
	Code       string   `yaml:"code"`
}

// LoadYAML reads every class defined in the YAML file at path.
func LoadYAML(path string) ([]*Class, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classfile: %w", err)
	}
	defer f.Close()
	classes, err := DecodeYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return classes, nil
}

// ParseYAML parses class definitions from a string.
func ParseYAML(src string) ([]*Class, error) {
	return DecodeYAML(strings.NewReader(src))
}

// DecodeYAML parses a stream of YAML class documents.
func DecodeYAML(r io.Reader) ([]*Class, error) {
	dec := yaml.NewDecoder(r)
	var classes []*Class
	for {
		var doc yamlClass
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("classfile: yaml: %w", err)
		}
		if doc.Name == "" && len(doc.Methods) == 0 && len(doc.Fields) == 0 {
			continue // empty document
		}
		c, err := doc.build()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func (doc *yamlClass) build() (*Class, error) {
	access, err := ParseFlags(doc.Flags)
	if err != nil {
		return nil, fmt.Errorf("classfile: %s: %w", doc.Name, err)
	}
	c := &Class{
		Name:       doc.Name,
		Interfaces: doc.Interfaces,
		Access:     access,
		SourceFile: doc.Source,
	}
	switch {
	case doc.Super != nil:
		c.Super = *doc.Super
	case doc.Name != "java/lang/Object":
		c.Super = "java/lang/Object"
	}

	pool := NewPoolBuilder()
	for _, yf := range doc.Fields {
		fa, err := ParseFlags(yf.Flags)
		if err != nil {
			return nil, fmt.Errorf("classfile: %s.%s: %w", doc.Name, yf.Name, err)
		}
		f := Field{Name: yf.Name, Descriptor: yf.Descriptor, Access: fa, Offset: yf.Offset}
		if yf.Value.Kind != 0 {
			idx, err := constantValue(pool, yf.Descriptor, &yf.Value)
			if err != nil {
				return nil, fmt.Errorf("classfile: %s.%s: %w", doc.Name, yf.Name, err)
			}
			f.ConstantValue = idx
		}
		c.Fields = append(c.Fields, f)
	}

	asm := &Assembler{Pool: pool}
	for _, ym := range doc.Methods {
		ma, err := ParseFlags(ym.Flags)
		if err != nil {
			return nil, fmt.Errorf("classfile: %s.%s: %w", doc.Name, ym.Name, err)
		}
		m := Method{Name: ym.Name, Descriptor: ym.Descriptor, Access: ma}
		if strings.TrimSpace(ym.Code) != "" {
			args, err := ArgSlots(ym.Descriptor)
			if err != nil {
				return nil, fmt.Errorf("classfile: %s.%s: %w", doc.Name, ym.Name, err)
			}
			if !ma.Has(AccStatic) {
				args++
			}
			code, err := asm.Assemble(ym.Code, args)
			if err != nil {
				return nil, fmt.Errorf("classfile: %s.%s%s: %w", doc.Name, ym.Name, ym.Descriptor, err)
			}
			if ym.MaxStack != nil {
				code.MaxStack = uint16(*ym.MaxStack)
			}
			if ym.MaxLocals != nil && *ym.MaxLocals > int(code.MaxLocals) {
				code.MaxLocals = uint16(*ym.MaxLocals)
			}
			m.Code = code
		}
		c.Methods = append(c.Methods, m)
	}
	c.Pool = pool.Pool()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func constantValue(pool *PoolBuilder, desc string, node *yaml.Node) (uint16, error) {
	switch desc {
	case "I", "S", "B", "C", "Z":
		var v int32
		if err := node.Decode(&v); err != nil {
			return 0, err
		}
		return pool.Integer(v), nil
	case "J":
		var v int64
		if err := node.Decode(&v); err != nil {
			return 0, err
		}
		return pool.Long(v), nil
	case "F":
		var v float32
		if err := node.Decode(&v); err != nil {
			return 0, err
		}
		return pool.Float(v), nil
	case "D":
		var v float64
		if err := node.Decode(&v); err != nil {
			return 0, err
		}
		return pool.Double(v), nil
	case "Ljava/lang/String;":
		var v string
		if err := node.Decode(&v); err != nil {
			return 0, err
		}
		return pool.String(v), nil
	}
	return 0, fmt.Errorf("no constant value form for %s", desc)
}
