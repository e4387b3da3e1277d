//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const platformSupported = true

// USER_HZ is fixed at 100 on every kernel we run on.
const clockTicksPerSecond = 100

// processUsage reads the kernel's own accounting for pid. Nothing here
// trusts the plugin: /proc is maintained by the kernel, not the child.
func processUsage(pid int) (usage, error) {
	var u usage

	status, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return u, fmt.Errorf("read process status: %w", err)
	}
	for _, line := range strings.Split(string(status), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return u, fmt.Errorf("parse VmRSS: %w", err)
		}
		u.rssBytes = kb << 10
		break
	}

	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return u, fmt.Errorf("read process stat: %w", err)
	}
	// The comm field is parenthesized and may contain spaces; fields are
	// only positional after the closing paren.
	raw := string(stat)
	idx := strings.LastIndexByte(raw, ')')
	if idx < 0 || idx+2 > len(raw) {
		return u, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(raw[idx+2:])
	// utime and stime are fields 14 and 15 of the full line; the slice
	// starts at field 3.
	if len(fields) < 13 {
		return u, fmt.Errorf("malformed stat for pid %d", pid)
	}
	utime, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return u, fmt.Errorf("parse utime: %w", err)
	}
	stime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return u, fmt.Errorf("parse stime: %w", err)
	}
	u.cpu = time.Duration(utime+stime) * time.Second / clockTicksPerSecond

	return u, nil
}

// configureSysProcAttr puts the child in its own process group so the whole
// tree can be killed at once, and ties its lifetime to the host's.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

func killProcessTree(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
