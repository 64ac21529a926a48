// Package host implements a CLI driver around package asm: a command
// tree for assembling files, inspecting the resulting image, and
// managing the pseudo-op catalog, read from a line-oriented input
// stream the way beevik/go6502's host package drives its debugger.
package host

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/beevik/prefixtree/v2"
)

// settings holds the live, user-settable assembler options exposed by
// the "set" command, mirroring beevik/go6502's host/settings.go:
// a struct of plain fields, discovered by reflection and addressed by
// unambiguous prefix through a prefixtree.
type settings struct {
	EnablePseudoInstructions bool   `doc:"expand pseudo-instructions"`
	DelayedBranchingEnabled  bool   `doc:"insert a nop delay slot after branches/jumps"`
	Verbose                  bool   `doc:"log each pipeline stage at debug level"`
	BaseDir                  string `doc:"directory .include paths resolve against"`
}

func newSettings() *settings {
	return &settings{
		EnablePseudoInstructions: true,
		DelayedBranchingEnabled:  true,
		Verbose:                  false,
		BaseDir:                  ".",
	}
}

type settingsField struct {
	name  string
	index int
	kind  reflect.Kind
	typ   reflect.Type
	doc   string
}

var (
	settingsTree   = prefixtree.New[*settingsField]()
	settingsFields []settingsField
)

func init() {
	settingsType := reflect.TypeOf(settings{})
	settingsFields = make([]settingsField, settingsType.NumField())
	for i := 0; i < len(settingsFields); i++ {
		f := settingsType.Field(i)
		doc, _ := f.Tag.Lookup("doc")
		settingsFields[i] = settingsField{
			name:  f.Name,
			index: i,
			kind:  f.Type.Kind(),
			typ:   f.Type,
			doc:   doc,
		}
		settingsTree.Add(strings.ToLower(f.Name), &settingsFields[i])
	}
}

func (s *settings) Display(w io.Writer) {
	value := reflect.ValueOf(s).Elem()
	for i, f := range settingsFields {
		v := value.Field(i)
		var line string
		switch f.kind {
		case reflect.String:
			line = fmt.Sprintf("    %-28s %q", f.name, v.String())
		case reflect.Bool:
			line = fmt.Sprintf("    %-28s %v", f.name, v.Bool())
		default:
			line = fmt.Sprintf("    %-28s %v", f.name, v)
		}
		fmt.Fprintf(w, "%-44s (%s)\n", line, f.doc)
	}
}

func (s *settings) Kind(key string) reflect.Kind {
	f, err := settingsTree.FindValue(strings.ToLower(key))
	if err != nil {
		return reflect.Invalid
	}
	return f.kind
}

func (s *settings) Set(key string, value any) error {
	f, err := settingsTree.FindValue(strings.ToLower(key))
	if err != nil {
		return err
	}

	vIn := reflect.ValueOf(value)
	if !vIn.Type().ConvertibleTo(f.typ) {
		return errors.New("invalid type")
	}

	vOut := reflect.ValueOf(s).Elem().Field(f.index).Addr().Elem()
	vOut.Set(vIn.Convert(f.typ))
	return nil
}
