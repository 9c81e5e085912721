//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with the configuration in config/engine.toml.
func (Run) Engine() error {
	mg.Deps(Build.Engine)
	fmt.Println("Run engine...")
	if _, err := executeCmd("bin/prism", withArgs("-config", "config/engine.toml"), withStream()); err != nil {
		return err
	}
	return nil
}
