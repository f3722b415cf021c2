package app

import (
	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/modules/checkout"
	"github.com/covflow/covflow/modules/coverage"
	"github.com/covflow/covflow/modules/env_vars"
	"github.com/covflow/covflow/modules/notify"
	"github.com/covflow/covflow/modules/print"
	"github.com/covflow/covflow/modules/shell"
	"github.com/covflow/covflow/modules/upload"
)

// coreModules is the definitive list of all runner modules that are
// compiled into the covflow binary.
var coreModules = []registry.Module{
	&checkout.Module{},
	&shell.Module{},
	&coverage.Module{},
	&upload.Module{},
	&env_vars.Module{},
	&print.Module{},
	&notify.Module{},
}
