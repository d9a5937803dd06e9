//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the two-armed testbed demo with metrics on :9090.
func (Run) Demo() error {
	fmt.Println("Run demo...")
	if _, err := executeCmd("go", withArgs("run", ".", "-demo", "-metrics-addr", ":9090"), withStream()); err != nil {
		return err
	}
	return nil
}

// Solves the rig given in $RIG and prints the pose.
func (Run) Rig() error {
	rig, err := envOrError("RIG")
	if err != nil {
		return err
	}
	_, err = executeCmd("go", withArgs("run", ".", "-rig", rig, "-print-chains"), withStream())
	return err
}
