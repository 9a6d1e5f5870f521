package modules

import (
	"bytemomo/bastion/internal/modules/echo"
	"bytemomo/bastion/internal/modules/noop"
)

// Init registers every builtin module with the native registry.
func Init() {
	noop.Init()
	echo.Init()
}
