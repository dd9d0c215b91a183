package app

import (
	"github.com/vk/forgegrid/internal/rules"
	"github.com/vk/forgegrid/modules/filestats"
	"github.com/vk/forgegrid/modules/wordcount"
)

// coreModules is the definitive list of rule modules compiled into the
// forgegrid binary.
var coreModules = []rules.Module{
	&filestats.Module{},
	&wordcount.Module{},
}
