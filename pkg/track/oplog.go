// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package track

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kraklabs/plunk/pkg/names"
)

var opsLogMu sync.Mutex

// AppendOpsLog appends one line to <consumer>/.plunk/ops.log for
// diagnostics (add, remove, push, restore, update events). Line format:
// RFC3339 timestamp + space + message. Failures are swallowed: the log
// must never break an operation.
func AppendOpsLog(consumerDir, message string) {
	if consumerDir == "" {
		return
	}
	opsLogMu.Lock()
	defer opsLogMu.Unlock()
	if err := os.MkdirAll(names.StateDir(consumerDir), 0o750); err != nil {
		return
	}
	f, err := os.OpenFile(names.OpsLogPath(consumerDir), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), message)
	_ = f.Close()
}

// OpsLogTail returns up to n trailing lines of the ops log. A missing log
// yields nil.
func OpsLogTail(consumerDir string, n int) []string {
	data, err := os.ReadFile(names.OpsLogPath(consumerDir))
	if err != nil {
		return nil
	}
	lines := splitLines(string(data))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
