package app

import (
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/specialistvlad/datagridgo/modules/dedup"
	"github.com/specialistvlad/datagridgo/modules/filter"
	"github.com/specialistvlad/datagridgo/modules/lang"
	"github.com/specialistvlad/datagridgo/modules/metadata"
	"github.com/specialistvlad/datagridgo/modules/pii"
	"github.com/specialistvlad/datagridgo/modules/quality"
	"github.com/specialistvlad/datagridgo/modules/sample"
	"github.com/specialistvlad/datagridgo/modules/transform"
)

// coreModules is the definitive list of all operator modules that are
// compiled into the datagridgo binary.
var coreModules = []registry.Module{
	&lang.Module{},
	&quality.Module{},
	&filter.Module{},
	&sample.Module{},
	&dedup.Module{},
	&metadata.Module{},
	&transform.Module{},
	&pii.Module{},
}

// CoreModules returns a copy of the built-in module list, for callers that
// add their own modules next to it.
func CoreModules() []registry.Module {
	return append([]registry.Module(nil), coreModules...)
}
