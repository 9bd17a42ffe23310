package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadProcessList parses a flat process-list file: one identifier per
// line, `#` starts a comment, blank lines are ignored. Identifiers are
// trimmed; anything non-empty after trimming is accepted as-is.
func ReadProcessList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading process list: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading process list: %w", err)
	}
	return ids, nil
}

// ResolveProcesses returns the batch of process identifiers: the list file
// when configured, else the single fallback id. No identifiers at all is a
// configuration error and fatal to the run.
func (c *Config) ResolveProcesses() ([]string, error) {
	var ids []string
	if c.ProcessesFile != "" {
		var err error
		ids, err = ReadProcessList(c.ProcessesFile)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 && c.Process != "" {
		ids = []string{c.Process}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no process identifiers configured (set processes_file or process)")
	}
	return ids, nil
}
