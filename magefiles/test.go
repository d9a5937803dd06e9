//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every unit test with the race detector.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the solver tests only, verbosely.
func (Test) Solver() error {
	_, err := executeCmd("go", withArgs("test", "-v", "-count=1", "./engine/ik/...", "./engine/qcp/..."), withStream())
	return err
}
