//go:build !linux

package sandbox

import (
	"os/exec"
)

const platformSupported = false

func processUsage(pid int) (usage, error) {
	return usage{}, ErrUnsupportedPlatform
}

func configureSysProcAttr(cmd *exec.Cmd) {}

func killProcessTree(pid int) {}
