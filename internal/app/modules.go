package app

import (
	"github.com/vk/tsforge/internal/registry"
	"github.com/vk/tsforge/modules/sdk"
	"github.com/vk/tsforge/modules/server"
	"github.com/vk/tsforge/modules/worker"
)

// coreModules is the definitive list of all loader and preset modules that
// are compiled into the tsforge binary.
var coreModules = []registry.Module{
	&server.Module{},
	&worker.Module{},
	&sdk.Module{},
}
