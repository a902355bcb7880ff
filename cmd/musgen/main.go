package main

import (
	"os"
	"reflect"
	"strings"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"
	"github.com/poiesic/recall/core"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	// go generate runs from core; write relative to the module root
	if strings.HasSuffix(cwd, "core") {
		if err := os.Chdir(".."); err != nil {
			panic(err)
		}
	}
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/recall/core"),
	)
	if err != nil {
		panic(err)
	}

	g.AddDefinedType(reflect.TypeFor[core.DocumentID]())

	// Unix micro timestamps
	opts := typeops.WithTimeUnit(typeops.Micro)
	err = g.AddStruct(reflect.TypeFor[core.EmbeddingRecord](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts))
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Document](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts),
		structops.WithField())
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.OwnerSettings](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts))
	if err != nil {
		panic(err)
	}

	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}

	err = os.WriteFile("./core/records_mus.gen.go", bs, 0644)
	if err != nil {
		panic(err)
	}
}
